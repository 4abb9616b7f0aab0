package iso

import "umdfs/internal/blockdev"

// Options configures a FileSystem session
type Options struct {
	// CaseSensitive disables case-insensitive name matching
	CaseSensitive bool

	// MaxHandles limits the number of simultaneously open files; zero
	// means no limit beyond the handle id space
	MaxHandles int

	// FrameCacheSize is passed to compressed devices by Load; a negative
	// value disables the cache and zero selects the default
	FrameCacheSize int

	// Decrypter is passed to encrypted devices by Load
	Decrypter blockdev.Decrypter
}

// deviceOptions converts the Load related settings
func (o Options) deviceOptions() []blockdev.Option {
	var opts []blockdev.Option
	switch {
	case o.FrameCacheSize < 0:
		opts = append(opts, blockdev.WithFrameCache(0))
	case o.FrameCacheSize > 0:
		opts = append(opts, blockdev.WithFrameCache(o.FrameCacheSize))
	}
	if o.Decrypter != nil {
		opts = append(opts, blockdev.WithDecrypter(o.Decrypter))
	}
	return opts
}
