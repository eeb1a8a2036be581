package display

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// DataURL inlines the payload, so there is nothing to release.
type DataURL struct{}

func (DataURL) Convert(_ context.Context, data []byte) (Ref, error) {
	if len(data) == 0 {
		return "", errors.New("no image data")
	}
	return Ref("data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
}

// DecodeDataURL returns the payload and media type behind a ref made by DataURL.
func DecodeDataURL(ref Ref) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(string(ref), "data:")
	if !ok {
		return nil, "", errors.New("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("malformed data url")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, "", errors.New("data url is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", err
	}
	return data, mediaType, nil
}
