package init_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	subinit "github.com/opst/gbdxkit/cmd/gbdx/subcommands/init"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/internal/commandline"
	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/logger"
	"github.com/opst/gbdxkit/pkg/config/profiles"
	"github.com/opst/gbdxkit/pkg/utils/try"
)

func TestInit(t *testing.T) {
	type When struct {
		profile string
		flags   subinit.Flags
		// existing store. nil means no store file.
		store profiles.ProfileStore
	}
	type Then struct {
		err      error
		link     bool
		profiles []string
	}

	theory := func(when When, then Then) func(*testing.T) {
		return func(t *testing.T) {
			dir := t.TempDir()
			workdir := filepath.Join(dir, "work")
			if err := os.MkdirAll(workdir, 0o755); err != nil {
				t.Fatal(err)
			}
			storePath := filepath.Join(dir, "home", ".gbdx", "profile")
			if when.store != nil {
				if err := when.store.Save(storePath); err != nil {
					t.Fatal(err)
				}
			}
			profFile := filepath.Join(dir, "profile.yaml")
			if err := os.WriteFile(profFile, []byte(when.profile), 0o600); err != nil {
				t.Fatal(err)
			}

			cf := common.CommonFlags{Profile: "work", ProfileStore: storePath}
			cl, _, _ := commandline.New("gbdx init", when.flags, map[string][]string{
				subinit.ARG_PROFILE_FILE: {profFile},
			})
			err := subinit.Task(workdir)(context.Background(), logger.Null(), cf, cl, []any{})
			if then.err != nil {
				if !errors.Is(err, then.err) {
					t.Errorf("expected error %v, but: %v", then.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}

			store := try.To(profiles.LoadProfileStore(storePath)).OrFatal(t)
			if len(store) != len(then.profiles) {
				t.Errorf("profiles: %v", store)
			}
			for _, name := range then.profiles {
				if _, ok := store[name]; !ok {
					t.Errorf("profile %s is missing", name)
				}
			}
			work := store["work"]
			if work.ApiRoot != "https://api.example.com" || work.Credentials.Username != "someone" {
				t.Errorf("saved profile: %+v", work)
			}
			if work.IdahoRoot != profiles.DefaultIdahoRoot {
				t.Errorf("idaho root is not defaulted: %s", work.IdahoRoot)
			}

			content, err := os.ReadFile(filepath.Join(workdir, common.ProfileFile))
			if then.link {
				if err != nil || string(content) != "work" {
					t.Errorf(".gbdxprofile: %q, %v", content, err)
				}
			} else if !errors.Is(err, os.ErrNotExist) {
				t.Errorf(".gbdxprofile is written: %q, %v", content, err)
			}
		}
	}

	const valid = `
apiRoot: https://api.example.com
credentials:
  username: someone
`

	t.Run("it creates a new store", theory(
		When{profile: valid},
		Then{link: true, profiles: []string{"work"}},
	))

	t.Run("it adds a profile to the store", theory(
		When{
			profile: valid,
			flags:   subinit.Flags{NoLink: true},
			store:   profiles.ProfileStore{"other": profiles.Default()},
		},
		Then{link: false, profiles: []string{"work", "other"}},
	))

	t.Run("it rejects a broken profile", theory(
		When{profile: "apiRoot: not a url\n"},
		Then{err: profiles.ErrProfileInvalid},
	))
}
