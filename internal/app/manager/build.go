package manager

import (
	"net/http"
	"net/url"

	"github.com/alexisbeaulieu97/reckless/internal/activation"
	"github.com/alexisbeaulieu97/reckless/internal/config"
	"github.com/alexisbeaulieu97/reckless/internal/controlplane"
	"github.com/alexisbeaulieu97/reckless/internal/execx"
	"github.com/alexisbeaulieu97/reckless/internal/installer"
	"github.com/alexisbeaulieu97/reckless/internal/logger"
	"github.com/alexisbeaulieu97/reckless/internal/pipeline"
	"github.com/alexisbeaulieu97/reckless/internal/resolver"
	"github.com/alexisbeaulieu97/reckless/internal/source"
	"github.com/alexisbeaulieu97/reckless/internal/tree"
	"github.com/alexisbeaulieu97/reckless/internal/vcs"
)

// BuildOptions adjusts how Build assembles the real collaborators.
type BuildOptions struct {
	Log *logger.Logger
	// StreamOutput mirrors dependency installer output to the terminal.
	StreamOutput bool
	Runner       execx.Runner
	HTTPClient   *http.Client
	TempDir      string
}

// Build assembles a Service from settings with the production backends.
func Build(s config.Settings, opts BuildOptions) (*Service, error) {
	log := opts.Log
	runner := opts.Runner
	if runner == nil {
		runner = execx.NewOSRunner()
	}

	registry, err := installer.Default(installer.Options{
		Runner:  runner,
		Timeout: s.DependencyTimeout,
		Stream:  opts.StreamOutput,
		Log:     log,
	})
	if err != nil {
		return nil, err
	}

	git := vcs.New(
		vcs.WithMetadataTimeout(s.MetadataTimeout),
		vcs.WithCloneTimeout(s.CloneTimeout),
		vcs.WithLogger(log),
	)

	classifier := source.NewClassifier(git,
		source.WithProbeTimeout(s.MetadataTimeout),
		source.WithRemoteHosts(hostname(s.GitHubBase)),
		source.WithLogger(log),
	)
	opener := &tree.Opener{
		Repository: tree.NewRepository(git, "", log),
		Remote:     tree.NewGitHub(s.GitHubAPI, tree.NewCallBudget(s.APICallLimit), opts.HTTPClient, log),
		Mirror:     tree.NewMirror(git, opts.TempDir, log),
	}
	searcher := resolver.NewSearcher(classifier, opener, resolver.New(registry, log),
		resolver.WithParallelism(s.SearchParallelism),
		resolver.WithSearchLogger(log),
	)

	installs := pipeline.New(s.InstallRoot(), git, registry, runner,
		pipeline.WithTempDir(opts.TempDir),
		pipeline.WithGitHubBase(s.GitHubBase),
		pipeline.WithSmokeTestTimeout(s.SmokeTestTimeout),
		pipeline.WithLogger(log),
	)

	control := controlplane.New(runner, s.LightningCLI, s.Network, s.LightningDir,
		controlplane.WithTimeout(s.ControlTimeout),
		controlplane.WithLogger(log),
	)

	return New(s, Deps{
		Registry:  registry,
		Searcher:  searcher,
		Installer: installs,
		Control:   control,
		Sources:   activation.NewSources(s.SourcesPath()),
	}, log), nil
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
