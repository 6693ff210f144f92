package catalog

import (
	catalog_search "github.com/opst/gbdxkit/cmd/gbdx/subcommands/catalog/search"
	"github.com/youta-t/flarc"
)

func New() (flarc.Command, error) {
	search, err := catalog_search.New()
	if err != nil {
		return nil, err
	}
	return flarc.NewCommandGroup(
		"Search the catalog of imagery.",
		struct{}{},
		flarc.WithSubcommand("search", search),
	)
}
