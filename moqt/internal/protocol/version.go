package protocol

// Version identifies a revision of the wire protocol.
type Version uint64

const (
	/*
	 * Develop Version
	 * These versions start with 0xffffff...
	 */
	Develop Version = 0xffffff00

	/*
	 * MOQ Lite draft versions
	 * These versions start with 0xff0dad...
	 */
	Lite01 Version = 0xff0dad01
	Lite02 Version = 0xff0dad02
)

// Supported lists the versions this implementation speaks, most preferred first.
var Supported = []Version{Lite02, Lite01}

// Default is the version offered first and selected when a peer supports it.
const Default = Lite02

// Negotiate returns the first of the offered versions that is also in supported.
// The offer order expresses the client's preference.
func Negotiate(offered, supported []Version) (Version, bool) {
	for _, o := range offered {
		for _, s := range supported {
			if o == s {
				return o, true
			}
		}
	}
	return 0, false
}
