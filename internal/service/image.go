package service

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"regexp"
	"strings"
)

// DecodedImage unifies the two input shapes a document image can arrive in
// (multipart upload, base64/data-URL string) so validation and storage run
// once regardless of transport.
type DecodedImage struct {
	Bytes    []byte
	MimeType string
	FileName string
}

var allowedImageMimeTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/jpg":  {},
	"image/png":  {},
}

var dataURLPattern = regexp.MustCompile(`^data:(.+);base64,(.*)$`)

// DecodeUpload reads a multipart file part into a DecodedImage.
func DecodeUpload(file multipart.File, header *multipart.FileHeader) (*DecodedImage, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file: %w", err)
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &DecodedImage{
		Bytes:    data,
		MimeType: strings.ToLower(mimeType),
		FileName: header.Filename,
	}, nil
}

// DecodeBase64 decodes a base64 string, optionally wrapped in a data URL
// with an embedded MIME type. Plain base64 defaults to image/jpeg.
func DecodeBase64(encoded, fileName string) (*DecodedImage, error) {
	mimeType := "image/jpeg"
	payload := encoded
	if m := dataURLPattern.FindStringSubmatch(encoded); m != nil {
		mimeType = strings.ToLower(m[1])
		payload = m[2]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image data: %w", err)
	}
	return &DecodedImage{
		Bytes:    data,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}

func (img *DecodedImage) MimeAllowed() bool {
	_, ok := allowedImageMimeTypes[img.MimeType]
	return ok
}

// Ext returns a file extension matching the image MIME type.
func (img *DecodedImage) Ext() string {
	switch img.MimeType {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}
