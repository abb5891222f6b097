package config

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Environment string

const (
	Live Environment = "live"
	Beta Environment = "beta"
	Dev  Environment = "dev"
)

type CDMConfig struct {
	Env         Environment `yaml:"env"`
	Addr        string      `yaml:"addr"`
	PrivateAddr string      `yaml:"private_addr"`
	BaseUrl     string      `yaml:"base_url"`
	LogLevel    string      `yaml:"log_level"`

	Postgres   PostgresConfig   `yaml:"postgres"`
	Email      EmailConfig      `yaml:"email"`
	Notify     NotifyConfig     `yaml:"notify"`
	Blog       BlogConfig       `yaml:"blog"`
	BugTracker BugTrackerConfig `yaml:"bugtracker"`
	PrivateMsg PrivateMsgConfig `yaml:"privatemsg"`
	Snippets   SnippetsConfig   `yaml:"snippets"`
}

type PostgresConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	DbName   string `yaml:"db_name"`
	LogLevel string `yaml:"log_level"`
	MinConn  int32  `yaml:"min_conn"`
	MaxConn  int32  `yaml:"max_conn"`
}

type EmailConfig struct {
	ServerAddress      string `yaml:"server_address"`
	ServerPort         int    `yaml:"server_port"`
	FromAddress        string `yaml:"from_address"`
	FromName           string `yaml:"from_name"`
	MailerUsername     string `yaml:"mailer_username"`
	MailerPassword     string `yaml:"mailer_password"`
	OverrideRecipients string `yaml:"override_recipients"`
}

type NotifyConfig struct {
	QueueSize      int     `yaml:"queue_size"`
	SendsPerSecond float64 `yaml:"sends_per_second"`
	Burst          int     `yaml:"burst"`
}

type BlogConfig struct {
	ArticlesPerFeed                int `yaml:"nb_articles_per_feed"`
	ArticlesPerPage                int `yaml:"nb_articles_per_page"`
	DaysBeforeArticleGetOld        int `yaml:"nb_days_before_article_get_old"`
	ParentForumIDForArticleThreads int `yaml:"parent_forum_id_for_article_threads"`
}

type BugTrackerConfig struct {
	IssuesPerPage          int `yaml:"nb_issues_per_page"`
	IssueCommentsPerPage   int `yaml:"nb_issue_comments_per_page"`
	SecondsBetweenComments int `yaml:"nb_seconds_between_comments"`
}

type PrivateMsgConfig struct {
	SecondsBetweenMessages                int `yaml:"nb_seconds_between_private_msg"`
	DeletedMsgDeletionTimeoutDays         int `yaml:"deleted_msg_deletion_timeout_days"`
	DeletedMsgPhysicalDeletionTimeoutDays int `yaml:"deleted_msg_physical_deletion_timeout_days"`
}

type SnippetsConfig struct {
	DefaultTabulationSize       int  `yaml:"default_tabulation_size"`
	DisplayLineNumbersByDefault bool `yaml:"display_line_numbers_by_default"`
}

func (info PostgresConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s host=%s port=%d dbname=%s", info.User, info.Password, info.Hostname, info.Port, info.DbName)
}

func (c CDMConfig) Level() zerolog.Level {
	return parseLevel(c.LogLevel, zerolog.InfoLevel)
}

func (info PostgresConfig) Level() zerolog.Level {
	return parseLevel(info.LogLevel, zerolog.WarnLevel)
}

func parseLevel(s string, fallback zerolog.Level) zerolog.Level {
	if s == "" {
		return fallback
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return fallback
	}
	return level
}

func (c BugTrackerConfig) CommentWindow() time.Duration {
	return time.Duration(c.SecondsBetweenComments) * time.Second
}

func (c PrivateMsgConfig) MessageWindow() time.Duration {
	return time.Duration(c.SecondsBetweenMessages) * time.Second
}

// LogicalWindow is how long a deleted message stays in its owner's trash.
func (c PrivateMsgConfig) LogicalWindow() time.Duration {
	return time.Duration(c.DeletedMsgDeletionTimeoutDays) * 24 * time.Hour
}

// PhysicalWindow is how long after both sides deleted a message the row is
// removed for good.
func (c PrivateMsgConfig) PhysicalWindow() time.Duration {
	return time.Duration(c.DeletedMsgPhysicalDeletionTimeoutDays) * 24 * time.Hour
}

func (c BlogConfig) OldThreshold() time.Duration {
	return time.Duration(c.DaysBeforeArticleGetOld) * 24 * time.Hour
}
