package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// FromWatermill copies Watermill message metadata into Headers. The result
// is never nil.
func FromWatermill(md message.Metadata) Headers {
	if len(md) == 0 {
		return Headers{}
	}

	result := make(Headers, len(md))
	for k, v := range md {
		result[k] = v
	}
	return result
}
