package validators

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func setupConfig(maxSize int64) {
	viper.Set("upload.max_size", maxSize)
	viper.Set("upload.allowed_types", []string{"image/png", "video/mp4"})
}

// makeFileHeader round-trips payload through a multipart form so the
// header behaves exactly like one produced by a real request.
func makeFileHeader(t *testing.T, name, contentType string, payload []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	reader := multipart.NewReader(&body, mw.Boundary())
	form, err := reader.ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })

	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}

func TestFileValidatorAccepts(t *testing.T) {
	setupConfig(1 << 20)

	fh := makeFileHeader(t, "pic.png", "image/png", pngMagic)
	code, f, err := FileValidator(fh)
	require.NoError(t, err)
	assert.Zero(t, code)
	require.NotNil(t, f)
	defer f.Close()

	// The file comes back rewound
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, pngMagic, data)
}

func TestFileValidatorNilHeader(t *testing.T) {
	setupConfig(1 << 20)

	code, f, err := FileValidator(nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Nil(t, f)
	assert.ErrorIs(t, err, ErrNoFile)
}

func TestFileValidatorNameTooLong(t *testing.T) {
	setupConfig(1 << 20)

	fh := makeFileHeader(t, strings.Repeat("a", 300)+".png", "image/png", pngMagic)
	code, _, err := FileValidator(fh)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.ErrorIs(t, err, ErrFileNameTooLong)
}

func TestFileValidatorTooLarge(t *testing.T) {
	setupConfig(4)

	fh := makeFileHeader(t, "pic.png", "image/png", pngMagic)
	code, _, err := FileValidator(fh)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestFileValidatorDisallowedDeclaredType(t *testing.T) {
	setupConfig(1 << 20)

	fh := makeFileHeader(t, "doc.exe", "application/x-msdownload", []byte("MZ"))
	code, _, err := FileValidator(fh)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.ErrorIs(t, err, ErrFileTypeUnsupported)
}

func TestFileValidatorSpoofedContent(t *testing.T) {
	setupConfig(1 << 20)

	// Header says PNG, the body is text
	fh := makeFileHeader(t, "fake.png", "image/png", []byte("not an image at all"))
	code, _, err := FileValidator(fh)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.ErrorIs(t, err, ErrFileTypeUnsupported)
}
