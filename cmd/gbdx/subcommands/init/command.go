package init

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/common"
	"github.com/opst/gbdxkit/pkg/config/profiles"
	"github.com/youta-t/flarc"
	"gopkg.in/yaml.v3"
)

type Flags struct {
	NoLink bool `flag:"no-link" help:"do not write .gbdxprofile into the current directory"`
}

type Option struct {
	workdir string
}

// WithWorkdir sets the directory where .gbdxprofile is written. Default: current directory.
func WithWorkdir(dir string) func(*Option) *Option {
	return func(o *Option) *Option {
		o.workdir = dir
		return o
	}
}

const ARG_PROFILE_FILE = "PROFILE_FILE"

func New(options ...func(*Option) *Option) (flarc.Command, error) {
	option := &Option{workdir: "."}
	for _, o := range options {
		option = o(option)
	}

	return flarc.NewCommand(
		"Register a profile into your profile store.",
		Flags{},
		flarc.Args{
			{
				Name: ARG_PROFILE_FILE, Required: true,
				Help: "filepath to a profile file (yaml) which has apiRoot and credentials.",
			},
		},
		common.NewTaskWithCommonFlag(Task(option.workdir)),
		flarc.WithDescription(`
Register a profile into your profile store.

"profile" is a yaml file like below:

	apiRoot: https://geobigdata.io
	credentials:
	  username: you@example.com
	  password: ...
	  clientId: ...
	  clientSecret: ...

Credentials can be left out, and given by environment variables
GBDX_USERNAME, GBDX_PASSWORD, GBDX_CLIENT_ID and GBDX_CLIENT_SECRET.

The name of the profile is given by "--profile" ( default: "default" ).
Unless --no-link, ".gbdxprofile" is written into the current directory
to use the profile in it and its descendants.
`),
	)
}

func Task(workdir string) common.TaskWithCommonFlag[Flags] {
	return func(
		ctx context.Context,
		logger *log.Logger,
		cf common.CommonFlags,
		cl flarc.Commandline[Flags],
		params []any,
	) error {
		profFile := cl.Args()[ARG_PROFILE_FILE][0]

		store, err := profiles.LoadProfileStore(cf.ProfileStore)
		if errors.Is(err, profiles.ErrProfileStoreNotFound) {
			store = profiles.ProfileStore{}
		} else if err != nil {
			return fmt.Errorf("failed to load profile store (%s): %w", cf.ProfileStore, err)
		}

		newProf := profiles.Default()
		{
			content, err := os.ReadFile(profFile)
			if err != nil {
				return fmt.Errorf("failed to read profile file (%s): %w", profFile, err)
			}
			if err := yaml.Unmarshal(content, newProf); err != nil {
				return fmt.Errorf("failed to parse profile file (%s): %w", profFile, err)
			}
		}
		if err := newProf.Verify(); err != nil {
			return fmt.Errorf("%s: %w", profFile, err)
		}

		store[cf.Profile] = newProf
		if err := store.Save(cf.ProfileStore); err != nil {
			return fmt.Errorf("failed to save profile store (%s): %w", cf.ProfileStore, err)
		}
		logger.Printf("profile %s is saved to %s", cf.Profile, cf.ProfileStore)

		if cl.Flags().NoLink {
			return nil
		}
		link := filepath.Join(workdir, common.ProfileFile)
		if err := os.WriteFile(link, []byte(cf.Profile), os.FileMode(0600)); err != nil {
			return fmt.Errorf("failed to write %s: %w", link, err)
		}
		return nil
	}
}
