// Package probe reads stream properties back from encoded mp4 clips
package probe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ErrNoVideoTrack is returned for files without a video track
var ErrNoVideoTrack = errors.New("no video track")

// Info describes the video track of a clip
type Info struct {
	FrameCount int
	FPS        float64
	Duration   float64 // seconds, rounded to 2 decimals
	Width      int
	Height     int
	Fragmented bool
}

// Bytes probes an in-memory clip
func Bytes(data []byte) (Info, error) {
	return Probe(bytes.NewReader(data))
}

// Probe parses an mp4 and reports its first video track
func Probe(r io.Reader) (Info, error) {
	var info Info

	f, err := mp4.DecodeFile(r)
	if err != nil {
		return info, fmt.Errorf("failed to parse mp4: %w", err)
	}
	if f.Moov == nil {
		return info, fmt.Errorf("missing moov box")
	}

	trak := videoTrack(f.Moov)
	if trak == nil {
		return info, ErrNoVideoTrack
	}
	info.Fragmented = f.IsFragmented()

	if trak.Tkhd != nil {
		info.Width = int(uint32(trak.Tkhd.Width) >> 16)
		info.Height = int(uint32(trak.Tkhd.Height) >> 16)
	}

	var timescale uint32
	var duration uint64
	if mdhd := trak.Mdia.Mdhd; mdhd != nil {
		timescale, duration = mdhd.Timescale, mdhd.Duration
	}

	var samples, sampleTime uint64
	if stbl := sampleTable(trak); stbl != nil && stbl.Stts != nil {
		for i, n := range stbl.Stts.SampleCount {
			samples += uint64(n)
			if i < len(stbl.Stts.SampleTimeDelta) {
				sampleTime += uint64(n) * uint64(stbl.Stts.SampleTimeDelta[i])
			}
		}
	}
	if samples == 0 && info.Fragmented {
		samples = fragmentSamples(f, trak.Tkhd)
	}
	if duration == 0 {
		duration = sampleTime
	}
	if duration == 0 && f.Moov.Mvhd != nil && f.Moov.Mvhd.Timescale > 0 && timescale > 0 {
		duration = f.Moov.Mvhd.Duration * uint64(timescale) / uint64(f.Moov.Mvhd.Timescale)
	}

	info.FrameCount = int(samples)
	if timescale > 0 && duration > 0 {
		seconds := float64(duration) / float64(timescale)
		info.Duration = math.Round(seconds*100) / 100
		if samples > 0 {
			info.FPS = float64(samples) / seconds
		}
	}
	return info, nil
}

func videoTrack(moov *mp4.MoovBox) *mp4.TrakBox {
	for _, trak := range moov.Traks {
		if trak.Mdia != nil && trak.Mdia.Hdlr != nil && trak.Mdia.Hdlr.HandlerType == "vide" {
			return trak
		}
	}
	return nil
}

func sampleTable(trak *mp4.TrakBox) *mp4.StblBox {
	if trak.Mdia == nil || trak.Mdia.Minf == nil {
		return nil
	}
	return trak.Mdia.Minf.Stbl
}

// fragmentSamples counts the samples of the video track across all movie
// fragments
func fragmentSamples(f *mp4.File, tkhd *mp4.TkhdBox) uint64 {
	var total uint64
	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if tkhd != nil && traf.Tfhd != nil && traf.Tfhd.TrackID != tkhd.TrackID {
					continue
				}
				for _, trun := range traf.Truns {
					total += uint64(trun.SampleCount())
				}
			}
		}
	}
	return total
}
