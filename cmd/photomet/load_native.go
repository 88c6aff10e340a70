//go:build !purego && !js && cgo

package main

import (
	"fmt"

	"gocv.io/x/gocv"

	ph "photomet/pkg/photomet"
)

func loadNonFitsImage(path string) (ph.Mat, int, int, error) {
	src := gocv.IMRead(path, gocv.IMReadGrayScale)
	if src.Empty() {
		return ph.Mat{}, 0, 0, fmt.Errorf("could not load image: %s", path)
	}
	defer src.Close()

	w, h := src.Cols(), src.Rows()
	n := w * h

	pixels := make([]uint16, n)
	switch src.Type() {
	case gocv.MatTypeCV16U:
		srcData, _ := src.DataPtrUint16()
		copy(pixels, srcData[:n])
	default:
		eightBit := gocv.NewMat()
		defer eightBit.Close()
		src.ConvertTo(&eightBit, gocv.MatTypeCV8U)
		srcData, _ := eightBit.DataPtrUint8()
		for i := 0; i < n; i++ {
			pixels[i] = uint16(srcData[i]) << 8
		}
	}

	return ph.ToFloat32Mat(pixels, 16, w, h), w, h, nil
}
