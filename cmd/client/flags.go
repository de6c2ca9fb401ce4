package main

import (
	"strings"

	"github.com/akkalaj75/hostelhub-v40/internal/config"
	"github.com/akkalaj75/hostelhub-v40/internal/models"
	"github.com/spf13/pflag"
)

// options 명령행 옵션
type options struct {
	configFile string
	userID     string
	listen     string
	memory     bool
	find       bool
	gender     string
	college    string
	comm       string
	interests  []string
	help       bool
}

func newFlagSet(opts *options) *pflag.FlagSet {
	fs := pflag.NewFlagSet("hostelhub-client", pflag.ContinueOnError)
	fs.StringVar(&opts.configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	fs.StringVar(&opts.userID, "user", "", "user id (default: USER_ID or a random uuid)")
	fs.StringVar(&opts.listen, "listen", "", "control API address (default: LISTEN_ADDR)")
	fs.BoolVar(&opts.memory, "memory", false, "use the in-process document store instead of redis")
	fs.BoolVar(&opts.find, "find", false, "start searching as soon as the client is up")
	fs.StringVar(&opts.gender, "gender", "", "gender filter used with --find")
	fs.StringVar(&opts.college, "college", models.AnyCollege, "college filter used with --find")
	fs.StringVar(&opts.comm, "comm", string(models.CommChat), "communication type: video, voice or chat")
	fs.StringSliceVar(&opts.interests, "interests", nil, "comma separated interests used with --find")
	fs.BoolVarP(&opts.help, "help", "h", false, "show help")
	return fs
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	opts := &options{}
	fs := newFlagSet(opts)
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return opts, fs, nil
}

// apply 명령행 값으로 설정 덮어쓰기
func (o *options) apply(cfg *config.Config) {
	if o.userID != "" {
		cfg.UserID = o.userID
	}
	if o.listen != "" {
		cfg.ListenAddr = o.listen
	}
	if o.memory {
		cfg.StoreBackend = "memory"
	}
}

func (o *options) preferences() models.Preferences {
	interests := make([]string, 0, len(o.interests))
	for _, i := range o.interests {
		if i = strings.TrimSpace(i); i != "" {
			interests = append(interests, i)
		}
	}
	return models.Preferences{
		Gender:    o.gender,
		College:   o.college,
		CommType:  models.CommType(strings.ToLower(o.comm)),
		Interests: interests,
	}
}
