// Package media 处理聊天中上传的图片
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // 注册 webp 解码器
)

// ErrInvalidImage 数据不是可识别的图片
var ErrInvalidImage = errors.New("invalid image data")

var formatMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}

// Image 解码后的图片
type Image struct {
	MIMEType string
	Data     []byte
	Width    int
	Height   int
}

// Options 图片压缩参数
type Options struct {
	MaxBytes     int // 超过该大小时重新编码
	MaxDimension int // 长边上限
	JPEGQuality  int
}

// DecodeImage 解析 base64 图片
// 支持纯 base64 和 data:<mime>;base64, 两种形式
func DecodeImage(encoded string) (*Image, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrInvalidImage
	}
	if strings.HasPrefix(encoded, "data:") {
		idx := strings.Index(encoded, ",")
		if idx < 0 || !strings.Contains(encoded[:idx], ";base64") {
			return nil, ErrInvalidImage
		}
		encoded = encoded[idx+1:]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// 部分前端会去掉末尾的 padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	mime, ok := formatMIME[format]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported format %s", ErrInvalidImage, format)
	}

	return &Image{MIMEType: mime, Data: data, Width: cfg.Width, Height: cfg.Height}, nil
}

// Normalize 压缩过大的图片
// 大小和尺寸都在限制内时原样返回，否则按长边缩放并重新编码为 JPEG
func Normalize(img *Image, opts Options) (*Image, error) {
	tooLarge := opts.MaxBytes > 0 && len(img.Data) > opts.MaxBytes
	tooWide := opts.MaxDimension > 0 && (img.Width > opts.MaxDimension || img.Height > opts.MaxDimension)
	if !tooLarge && !tooWide {
		return img, nil
	}

	src, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if tooWide {
		src = imaging.Fit(src, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
	}

	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	b := src.Bounds()
	return &Image{
		MIMEType: "image/jpeg",
		Data:     buf.Bytes(),
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}
