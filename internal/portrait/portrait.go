package portrait

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrNoImage is returned by generators whose response carried no image part.
	ErrNoImage  = errors.New("no image in response")
	ErrNotImage = errors.New("payload is not an image")
)

const fallbackMIME = "image/jpeg"

type Image struct {
	Data     []byte
	MIMEType string
}

func (img Image) Empty() bool {
	return len(img.Data) == 0
}

func (img Image) DataURI() string {
	mimeType := img.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(img.Data))
}

func (img Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// Extension returns the download file extension, with the leading dot.
func (img Image) Extension() string {
	switch img.MIMEType {
	case "image/png", "":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	if exts, _ := mime.ExtensionsByType(img.MIMEType); len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}

// ParseDataURI decodes a data URI. A bare base64 string is accepted and
// treated as JPEG.
func ParseDataURI(value string) (Image, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Image{}, errors.New("empty data uri")
	}

	mimeType := fallbackMIME
	payload := value
	if strings.HasPrefix(value, "data:") {
		meta, data, ok := strings.Cut(value, ",")
		if !ok {
			return Image{}, errors.New("invalid data uri")
		}
		meta = strings.TrimPrefix(meta, "data:")
		if m := strings.TrimSpace(strings.Split(meta, ";")[0]); m != "" {
			mimeType = m
		}
		payload = data
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("decode base64: %w", err)
	}
	if len(raw) == 0 {
		return Image{}, errors.New("empty image data")
	}
	return Image{Data: raw, MIMEType: mimeType}, nil
}

// DetectImage wraps raw upload bytes, trusting the declared type only when
// it is a concrete image type and sniffing otherwise.
func DetectImage(data []byte, declared string) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty upload", ErrNotImage)
	}

	mimeType := normalizeMIME(declared)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = normalizeMIME(http.DetectContentType(data))
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return Image{}, fmt.Errorf("%w: detected %s", ErrNotImage, mimeType)
	}
	return Image{Data: data, MIMEType: mimeType}, nil
}

func normalizeMIME(value string) string {
	value = strings.TrimSpace(value)
	if before, _, ok := strings.Cut(value, ";"); ok {
		value = strings.TrimSpace(before)
	}
	return strings.ToLower(value)
}

// Results maps style ids to their most recently generated image.
type Results map[string]Image

// Merge returns a new map holding dst overlaid with src. Keys present in both
// take src's value.
func Merge(dst, src Results) Results {
	out := make(Results, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (r Results) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r Results) Clone() Results {
	return Merge(nil, r)
}

func (r Results) DataURIs() map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[k] = v.DataURI()
	}
	return out
}
