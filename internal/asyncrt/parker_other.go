//go:build !linux

package asyncrt

func newParker() (parker, error) {
	return newChanParker(), nil
}
