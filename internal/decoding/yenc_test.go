package decoding

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// buildArticle yEnc-encodes two plain bytes ('A','B', chosen because
// raw+42 never lands on a byte that needs escaping) under a minimal
// single-part header/footer.
func buildArticle() string {
	return "=ybegin line=128 size=2 name=test.bin\r\n" +
		"kl\r\n" +
		"=yend size=2 pcrc32=30694C07\r\n"
}

func TestYencDecoderDecodesPayloadAndVerifiesCRC(t *testing.T) {
	d := NewYencDecoder(strings.NewReader(buildArticle()))
	require.NoError(t, d.DiscardHeader())

	buf := make([]byte, 16)
	n, err := readAllYenc(t, d, buf)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(buf[:n]))
	assert.NoError(t, d.Verify())
}

func TestYencDecoderVerifyFailsOnChecksumMismatch(t *testing.T) {
	article := "=ybegin line=128 size=2 name=test.bin\r\n" +
		"kl\r\n" +
		"=yend size=2 pcrc32=DEADBEEF\r\n"
	d := NewYencDecoder(strings.NewReader(article))
	require.NoError(t, d.DiscardHeader())

	buf := make([]byte, 16)
	_, err := readAllYenc(t, d, buf)
	require.NoError(t, err)
	assert.Error(t, d.Verify())
}

func TestYencDecoderSkipsYpartHeaderLine(t *testing.T) {
	article := "=ybegin part=1 line=128 size=2 name=test.bin\r\n" +
		"=ypart begin=1 end=2\r\n" +
		"kl\r\n" +
		"=yend size=2 pcrc32=30694C07\r\n"
	d := NewYencDecoder(strings.NewReader(article))
	require.NoError(t, d.DiscardHeader())

	buf := make([]byte, 16)
	n, err := readAllYenc(t, d, buf)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(buf[:n]))
}

func TestDecodeArticleReturnsExactlyExpectedLength(t *testing.T) {
	a := &domain.Article{MessageID: "<test@test>", Length: 2}
	buf, err := DecodeArticle(strings.NewReader(buildArticle()), a)
	require.NoError(t, err)
	assert.Equal(t, "AB", string(buf))
}

func TestDecodeArticleRejectsLengthMismatch(t *testing.T) {
	a := &domain.Article{MessageID: "<test@test>", Length: 4}
	_, err := DecodeArticle(strings.NewReader(buildArticle()), a)
	assert.ErrorIs(t, err, domain.ErrProtocolError)
}

func TestDecodeArticleSurfacesChecksumMismatchAsTransient(t *testing.T) {
	article := "=ybegin line=128 size=2 name=test.bin\r\n" +
		"kl\r\n" +
		"=yend size=2 pcrc32=DEADBEEF\r\n"
	a := &domain.Article{MessageID: "<test@test>", Length: 2}
	_, err := DecodeArticle(strings.NewReader(article), a)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestDiscardHeaderReturnsErrorWhenHeaderMissing(t *testing.T) {
	d := NewYencDecoder(strings.NewReader("no header here\n"))
	assert.Error(t, d.DiscardHeader())
}

func readAllYenc(t *testing.T, d *YencDecoder, buf []byte) (int, error) {
	t.Helper()
	total := 0
	for {
		n, err := d.Read(buf[total:])
		total += n
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
