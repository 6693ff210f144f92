package common

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/opst/gbdxkit/cmd/gbdx/subcommands/logger"
	"github.com/opst/gbdxkit/pkg/auth"
	"github.com/opst/gbdxkit/pkg/config/profiles"
	"github.com/youta-t/flarc"
)

type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		return task(ctx, logger.For(cl.Stderr(), cl.Fullname()), commonFlag, cl, newpos)
	}
}

type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	sess *auth.Session,
	cl flarc.Commandline[T],
	params []any,
) error

// LoadProfile reads the profile named in commonFlag, overridden by environment variables.
func LoadProfile(commonFlag CommonFlags) (*profiles.Profile, error) {
	store, err := profiles.LoadProfileStore(commonFlag.ProfileStore)
	if err != nil {
		if errors.Is(err, profiles.ErrProfileStoreNotFound) {
			return nil, fmt.Errorf(
				"%w: profile store (%s) is not found. Please try `gbdx init` first",
				err, commonFlag.ProfileStore,
			)
		}
		return nil, fmt.Errorf(
			"%w: failed to load profile store (%s)",
			err, commonFlag.ProfileStore,
		)
	}
	prof, ok := store[commonFlag.Profile]
	if !ok {
		return nil, fmt.Errorf(
			"profile '%s' not found in the profile store (%s)",
			commonFlag.Profile, commonFlag.ProfileStore,
		)
	}
	return prof.WithEnv(os.LookupEnv), nil
}

// NewTask signs in with the profile, and runs the task on the session.
func NewTask[T any](task Task[T]) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		prof, err := LoadProfile(commonFlag)
		if err != nil {
			return err
		}

		sess, err := auth.Login(ctx, prof)
		if err != nil {
			return fmt.Errorf(
				"%w: failed to sign in. Your profile (%s in %s) can be broken, or credentials are wrong",
				err, commonFlag.Profile, commonFlag.ProfileStore,
			)
		}
		return task(ctx, logger, sess, cl, params)
	})
}
