package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// The file named by this variable, if any, is layered over the defaults
// when the process starts.
const ConfigFileEnv = "CDM_CONFIG"

var Config = Default()

func init() {
	path := os.Getenv(ConfigFileEnv)
	if path == "" {
		return
	}
	if err := LoadFile(&Config, path); err != nil {
		panic(err)
	}
}

func Default() CDMConfig {
	return CDMConfig{
		Env:         Dev,
		Addr:        ":9001",
		PrivateAddr: ":9494",
		BaseUrl:     "http://cdm.localhost:9001",
		LogLevel:    "info",
		Postgres: PostgresConfig{
			User:     "cdm",
			Password: "password",
			Hostname: "localhost",
			Port:     5432,
			DbName:   "cdm",
			LogLevel: "warn",
			MinConn:  2,
			MaxConn:  10,
		},
		Email: EmailConfig{
			ServerAddress: "localhost",
			ServerPort:    587,
			FromAddress:   "noreply@cdm.localhost",
			FromName:      "CDM",
		},
		Notify: NotifyConfig{
			QueueSize:      256,
			SendsPerSecond: 2,
			Burst:          5,
		},
		Blog: BlogConfig{
			ArticlesPerFeed:         10,
			ArticlesPerPage:         10,
			DaysBeforeArticleGetOld: 365,
		},
		BugTracker: BugTrackerConfig{
			IssuesPerPage:          10,
			IssueCommentsPerPage:   15,
			SecondsBetweenComments: 60,
		},
		PrivateMsg: PrivateMsgConfig{
			SecondsBetweenMessages:                60,
			DeletedMsgDeletionTimeoutDays:         30,
			DeletedMsgPhysicalDeletionTimeoutDays: 365,
		},
		Snippets: SnippetsConfig{
			DefaultTabulationSize:       4,
			DisplayLineNumbersByDefault: true,
		},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys missing from the
// file keep whatever value cfg already had.
func LoadFile(cfg *CDMConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Overlay(cfg, data)
}

func Overlay(cfg *CDMConfig, data []byte) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Validate checks the settings that the rest of the program assumes are sane.
// It is run once on startup and a failure is fatal.
func (c CDMConfig) Validate() error {
	var errs []error
	pm := c.PrivateMsg
	if pm.DeletedMsgDeletionTimeoutDays <= 0 {
		errs = append(errs, errors.New("privatemsg.deleted_msg_deletion_timeout_days must be positive"))
	}
	if pm.DeletedMsgDeletionTimeoutDays >= pm.DeletedMsgPhysicalDeletionTimeoutDays {
		errs = append(errs, fmt.Errorf(
			"privatemsg.deleted_msg_deletion_timeout_days (%d) must be less than deleted_msg_physical_deletion_timeout_days (%d)",
			pm.DeletedMsgDeletionTimeoutDays, pm.DeletedMsgPhysicalDeletionTimeoutDays,
		))
	}
	if c.BugTracker.IssueCommentsPerPage <= 0 {
		errs = append(errs, errors.New("bugtracker.nb_issue_comments_per_page must be positive"))
	}
	if c.Blog.ParentForumIDForArticleThreads < 0 {
		errs = append(errs, errors.New("blog.parent_forum_id_for_article_threads must not be negative"))
	}
	if c.Snippets.DefaultTabulationSize < 1 || c.Snippets.DefaultTabulationSize > 16 {
		errs = append(errs, errors.New("snippets.default_tabulation_size must be between 1 and 16"))
	}
	if c.Notify.SendsPerSecond <= 0 {
		errs = append(errs, errors.New("notify.sends_per_second must be positive"))
	}
	return errors.Join(errs...)
}
