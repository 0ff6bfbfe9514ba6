package lifecycle

import (
	"image"

	"github.com/hpungsan/stickerjar/internal/blob"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/media"
)

// originalQuality is the JPEG quality of uploaded original photos.
const originalQuality = 85

// UploadKeys are the blob keys of one sticker's images.
type UploadKeys struct {
	Image     string
	Thumbnail string
	Original  string
}

// Keys returns the blob layout for a sticker:
// stickers/<user>/<id>.png, stickers/<user>/<id>_thumb.png and
// originals/<user>/<id>.jpg.
func Keys(userID, id string) UploadKeys {
	user := blob.SanitizeSegment(userID)
	sid := blob.SanitizeSegment(id)
	return UploadKeys{
		Image:     "stickers/" + user + "/" + sid + ".png",
		Thumbnail: "stickers/" + user + "/" + sid + "_thumb.png",
		Original:  "originals/" + user + "/" + sid + ".jpg",
	}
}

func decode(data []byte) (image.Image, error) {
	img, err := media.Decode(data)
	if err != nil {
		return nil, errors.NewInvalidRequest("sticker image: " + err.Error())
	}
	if img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0 {
		return nil, errors.NewInvalidRequest("sticker image is empty")
	}
	return img, nil
}

func thumbnail(img image.Image, max int) ([]byte, error) {
	return media.Thumbnail(img, max)
}

// normalizeOriginal re-encodes the original photo as JPEG. Undecodable
// input is uploaded as-is.
func normalizeOriginal(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	img, err := media.Decode(data)
	if err != nil {
		return data
	}
	out, err := media.EncodeJPEG(img, originalQuality)
	if err != nil {
		return data
	}
	return out
}
