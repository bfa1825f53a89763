package export

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrUnknownQuality  = errors.New("unknown quality")
)

// AppName prefixes every exported file name.
const AppName = "easy-clips"

type Quality struct {
	Key     string `json:"key" yaml:"key"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	Bitrate string `json:"bitrate" yaml:"bitrate"`
}

// Only Bitrate feeds the plan; output dimensions come from the platform.
var qualities = map[string]Quality{
	"1080p": {Key: "1080p", Width: 1920, Height: 1080, Bitrate: "5000k"},
	"720p":  {Key: "720p", Width: 1280, Height: 720, Bitrate: "2500k"},
	"480p":  {Key: "480p", Width: 854, Height: 480, Bitrate: "1000k"},
}

type Platform struct {
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Width       int    `json:"width" yaml:"width"`
	Height      int    `json:"height" yaml:"height"`
	AspectRatio string `json:"aspect_ratio" yaml:"aspect_ratio"`
}

var platforms = map[string]Platform{
	"tiktok":          {Key: "tiktok", Name: "TikTok", Width: 1080, Height: 1920, AspectRatio: "9:16"},
	"youtube-shorts":  {Key: "youtube-shorts", Name: "YouTube Shorts", Width: 1080, Height: 1920, AspectRatio: "9:16"},
	"instagram-reels": {Key: "instagram-reels", Name: "Instagram Reels", Width: 1080, Height: 1920, AspectRatio: "9:16"},
	"twitter":         {Key: "twitter", Name: "Twitter/X", Width: 1280, Height: 720, AspectRatio: "16:9"},
	"custom":          {Key: "custom", Name: "Custom", Width: 1920, Height: 1080, AspectRatio: "16:9"},
}

const (
	DefaultPlatform = "youtube-shorts"
	DefaultQuality  = "1080p"
)

func LookupQuality(key string) (Quality, error) {
	if key == "" {
		key = DefaultQuality
	}
	q, ok := qualities[key]
	if !ok {
		return Quality{}, fmt.Errorf("%w: %q", ErrUnknownQuality, key)
	}
	return q, nil
}

func LookupPlatform(key string) (Platform, error) {
	if key == "" {
		key = DefaultPlatform
	}
	p, ok := platforms[key]
	if !ok {
		return Platform{}, fmt.Errorf("%w: %q", ErrUnknownPlatform, key)
	}
	return p, nil
}

// Platforms lists the presets sorted by key.
func Platforms() []Platform {
	out := make([]Platform, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Qualities lists the tiers from highest to lowest.
func Qualities() []Quality {
	return []Quality{qualities["1080p"], qualities["720p"], qualities["480p"]}
}

// OutputFilename builds the download name {app}-{platform}-{unix millis}.mp4.
func OutputFilename(platform string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%d.%s", AppName, platform, at.UnixMilli(), Container)
}
