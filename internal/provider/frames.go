package provider

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"
)

// logDeviceFrame records non-audio frames coming from the device. The
// firmware sends occasional JSON chatter (playback acks, wifi reports);
// none of it is conversation input for the vendor.
func logDeviceFrame(ctx context.Context, data []byte) {
	logger := zerolog.Ctx(ctx)

	v, err := fastjson.ParseBytes(data)
	if err != nil {
		logger.Debug().Int("len", len(data)).Msg("unparseable text frame from device")
		return
	}

	logger.Debug().
		Str("frame_type", string(v.GetStringBytes("type"))).
		Msg("device frame")
}
