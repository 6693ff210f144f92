package common

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/opst/gbdxkit/pkg/config/profiles"
)

// ProfileFile is a file which has a profile name to be used in its directory and descendants.
const ProfileFile = ".gbdxprofile"

type CommonFlags struct {
	Profile      string `flag:"profile" help:"profile name to use"`
	ProfileStore string `flag:"profile-store" help:"path to profile store file"`
}

type commonFlagDetection struct {
	home string
}

type CommonFlagDetectionOption func(*commonFlagDetection) *commonFlagDetection

func WithHome(home string) CommonFlagDetectionOption {
	return func(opt *commonFlagDetection) *commonFlagDetection {
		opt.home = home
		return opt
	}
}

// Flags detects default values of CommonFlags.
//
// The profile name is read from the nearest .gbdxprofile file in from or its ancestors.
// If there is no such file, it is "default".
func Flags(from string, opt ...CommonFlagDetectionOption) (CommonFlags, error) {
	detparam := commonFlagDetection{}
	for _, o := range opt {
		detparam = *o(&detparam)
	}

	store := profiles.DefaultStorePath()
	if detparam.home != "" {
		store = filepath.Join(detparam.home, ".gbdx", "profile")
	}

	if _from, err := filepath.Abs(from); err == nil {
		from = _from
	}

	profile := profiles.DefaultProfile
	for searchpath := from; ; {
		candidate := filepath.Join(searchpath, ProfileFile)
		if s, err := os.Stat(candidate); err == nil && s.Mode().IsRegular() {
			content, err := os.ReadFile(candidate)
			if err != nil {
				return CommonFlags{}, err
			}
			if p, _, _ := strings.Cut(string(content), "\n"); strings.TrimSpace(p) != "" {
				profile = strings.TrimSpace(p)
			}
			break
		}

		next := filepath.Dir(searchpath)
		if next == searchpath {
			break
		}
		searchpath = next
	}

	return CommonFlags{
		Profile:      profile,
		ProfileStore: store,
	}, nil
}
