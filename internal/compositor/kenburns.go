package compositor

import "image"

// Camera is the pan/zoom state of one background layer for one frame.
type Camera struct {
	Zoom   float64
	DriftX float64 // focal drift direction, -1..1
	DriftY float64
	P      float64 // eased scene progress, 0..1
}

var driftModes = []string{"center", "top-left", "top-right", "bottom-left", "bottom-right"}

// kenBurnsCamera computes the camera for a scene at eased progress p. The
// "random" mode picks a drift direction from the scene index, never from the
// clock, so preview and export agree frame for frame.
func kenBurnsCamera(mode string, sceneIdx int, p, zoomMax float64) Camera {
	if mode == "random" {
		if sceneIdx < 0 {
			sceneIdx = 0
		}
		mode = driftModes[sceneIdx%len(driftModes)]
	}

	cam := Camera{Zoom: lerp(1.0, zoomMax, p), P: p}
	switch mode {
	case "top-left":
		cam.DriftX, cam.DriftY = -1, -1
	case "top-right":
		cam.DriftX, cam.DriftY = 1, -1
	case "bottom-left":
		cam.DriftX, cam.DriftY = -1, 1
	case "bottom-right":
		cam.DriftX, cam.DriftY = 1, 1
	default: // center: gentle diagonal drift so the frame never sits still
		cam.DriftX, cam.DriftY = 0.3, 0.3
	}
	return cam
}

// cropRect returns the source crop that fills a dstW×dstH surface from a
// srcW×srcH bitmap under cam. Aspect mismatch is resolved by cropping, never
// by stretching or letterboxing: the base crop is the largest rectangle of
// the destination's aspect ratio that fits inside the source, shrunk by the
// zoom factor and drifted toward the camera's focal corner.
func cropRect(srcW, srcH, dstW, dstH int, cam Camera) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}

	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	baseW := float64(srcW)
	baseH := float64(srcH)
	if srcAspect > dstAspect {
		baseW = baseH * dstAspect
	} else {
		baseH = baseW / dstAspect
	}

	zoom := cam.Zoom
	if zoom < 1.0 {
		zoom = 1.0
	}
	cw := baseW / zoom
	ch := baseH / zoom

	cx := float64(srcW) / 2
	cy := float64(srcH) / 2
	cx += cam.DriftX * cam.P * (float64(srcW) - cw) / 2
	cy += cam.DriftY * cam.P * (float64(srcH) - ch) / 2

	// Keep the crop fully inside the source.
	cx = clampF(cx, cw/2, float64(srcW)-cw/2)
	cy = clampF(cy, ch/2, float64(srcH)-ch/2)

	return image.Rect(
		int(cx-cw/2), int(cy-ch/2),
		int(cx+cw/2), int(cy+ch/2),
	)
}

func clampF(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
