package imagedelivery

import "errors"

var errUnknownPreset = errors.New("imagedelivery: unknown window preset")
