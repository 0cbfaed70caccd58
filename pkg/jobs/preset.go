package jobs

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset holds the output encoding settings sent with each job.
//
// Defaults match the stock MP3 delivery profile: 160 kbps VBR, 48 kHz,
// stereo, written under out/ in the media bucket.
type Preset struct {
	// Codec is the output audio codec. Only "mp3" is currently supported.
	Codec string `yaml:"codec"`

	// Bitrate is the target bitrate in bits per second.
	Bitrate int `yaml:"bitrate"`

	// SampleRate is the output sample rate in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the output channel count.
	Channels int `yaml:"channels"`

	// RateControl is "VBR" or "CBR".
	RateControl string `yaml:"rate_control"`

	// VBRQuality is the VBR quality level (0 best to 9 worst). Ignored
	// for CBR.
	VBRQuality int `yaml:"vbr_quality"`

	// DestinationPrefix is the object key prefix for transcoded output.
	DestinationPrefix string `yaml:"destination_prefix"`
}

// DefaultPreset returns the stock MP3 delivery profile.
func DefaultPreset() Preset {
	return Preset{
		Codec:             "mp3",
		Bitrate:           160000,
		SampleRate:        48000,
		Channels:          2,
		RateControl:       "VBR",
		VBRQuality:        4,
		DestinationPrefix: "out/",
	}
}

// LoadPreset reads a preset from a YAML file. Missing fields fall back to
// the defaults; unknown fields are rejected.
func LoadPreset(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, fmt.Errorf("read preset file: %w", err)
	}
	return ParsePreset(data)
}

// ParsePreset parses a preset from raw YAML, applying defaults.
func ParsePreset(data []byte) (Preset, error) {
	p := DefaultPreset()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return Preset{}, fmt.Errorf("parse preset: %w", err)
	}

	if err := p.Validate(); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Validate checks the preset for values the processor would reject.
func (p Preset) Validate() error {
	if p.Codec != "mp3" {
		return fmt.Errorf("preset: unsupported codec %q", p.Codec)
	}
	if p.Bitrate <= 0 {
		return fmt.Errorf("preset: bitrate must be positive, got %d", p.Bitrate)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("preset: sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Channels < 1 || p.Channels > 2 {
		return fmt.Errorf("preset: channels must be 1 or 2, got %d", p.Channels)
	}
	switch p.RateControl {
	case "VBR":
		if p.VBRQuality < 0 || p.VBRQuality > 9 {
			return fmt.Errorf("preset: vbr_quality must be 0-9, got %d", p.VBRQuality)
		}
	case "CBR":
	default:
		return fmt.Errorf("preset: rate_control must be VBR or CBR, got %q", p.RateControl)
	}
	return nil
}
