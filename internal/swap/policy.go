package swap

// RecommendMB maps total RAM to a recommended swap size, in megabytes.
// Small machines get a 2 GB file, mid-size machines 1 GB, and machines with
// more than 4 GB of RAM get none. A result of 0 means "no swap recommended"
// and is a valid terminal answer, not an error.
func RecommendMB(totalRAMMB uint64) uint64 {
	switch {
	case totalRAMMB <= 2048:
		return 2048
	case totalRAMMB <= 4096:
		return 1024
	default:
		return 0
	}
}
