//go:build !linux

package simhost

func localCoreCount() (int, bool)     { return 0, false }
func localPageSizeBytes() (int, bool) { return 0, false }
