package admintools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"git.cdm.community/cdm/cdm/src/config"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/migration"
	"git.cdm.community/cdm/cdm/src/migration/types"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/privatemsg"
	"git.cdm.community/cdm/cdm/src/rerender"
	"git.cdm.community/cdm/cdm/src/users"
	"git.cdm.community/cdm/cdm/src/website"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

var listMigrations bool

func init() {
	migrateCommand := &cobra.Command{
		Use:   "migrate [target migration id]",
		Short: "Run database migrations",
		Run: func(cmd *cobra.Command, args []string) {
			if listMigrations {
				migration.ListMigrations()
				return
			}

			targetVersion := time.Time{}
			if len(args) > 0 {
				var err error
				targetVersion, err = time.Parse(time.RFC3339, args[0])
				if err != nil {
					fmt.Printf("ERROR: bad version string: %v", err)
					os.Exit(1)
				}
			}
			migration.Migrate(types.MigrationVersion(targetVersion))
		},
	}
	migrateCommand.Flags().BoolVar(&listMigrations, "list", false, "List available migrations")

	makeMigrationCommand := &cobra.Command{
		Use:   "makemigration <name> <description>...",
		Short: "Create a new database migration file",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide a name and a description.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			name := args[0]
			description := strings.Join(args[1:], " ")

			migration.MakeMigration(name, description)
		},
	}

	seedCommand := &cobra.Command{
		Use:   "seed",
		Short: "Migrate to the latest version and fill the database with sample data",
		Run: func(cmd *cobra.Command, args []string) {
			SampleSeed()
		},
	}

	website.WebsiteCommand.AddCommand(migrateCommand)
	website.WebsiteCommand.AddCommand(makeMigrationCommand)
	website.WebsiteCommand.AddCommand(seedCommand)

	adminCommand := &cobra.Command{
		Use:   "admin",
		Short: "Miscellaneous admin commands",
	}
	website.WebsiteCommand.AddCommand(adminCommand)

	activateUserCommand := &cobra.Command{
		Use:   "activateuser [username] [true/false]",
		Short: "Open or close a user's account",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide a username and 'true' or 'false'.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			username := args[0]
			active := args[1] == "true"

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			res, err := conn.Exec(ctx, "UPDATE auth_user SET is_active = $1 WHERE LOWER(username) = LOWER($2)", active, username)
			if err != nil {
				panic(err)
			}
			if res.RowsAffected() == 0 {
				fmt.Printf("User not found.\n\n")
				os.Exit(1)
			}

			fmt.Printf("Set is_active to %v for %s.\n\n", active, username)
		},
	}
	adminCommand.AddCommand(activateUserCommand)

	createUserCommand := &cobra.Command{
		Use:   "createuser [username]",
		Short: "Creates a new active user",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 1 {
				fmt.Printf("You must provide a username.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			username := args[0]

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			_, err := users.FetchUserByUsername(ctx, conn, username)
			if err == nil {
				fmt.Printf("%s already exists. Please pick a different username.\n\n", username)
				os.Exit(1)
			} else if !errors.Is(err, db.NotFound) {
				panic(err)
			}

			user, err := db.QueryOne[models.User](ctx, conn,
				`
				INSERT INTO auth_user (username, email, date_joined)
				VALUES ($1, $2, $3)
				RETURNING $columns
				`,
				username,
				uuid.New().String()+"@example.com",
				time.Now(),
			)
			if err != nil {
				panic(err)
			}

			fmt.Printf("New user added!\nID: %d\nUsername: %s\n", user.ID, user.Username)
			fmt.Printf("You can make the user staff with the following command:\n")
			fmt.Printf("usersetadmin %s true\n", username)
		},
	}
	adminCommand.AddCommand(createUserCommand)

	userSetAdminCommand := &cobra.Command{
		Use:   "usersetadmin [username] [true/false]",
		Short: "Toggle the user's staff privileges",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				fmt.Printf("You must provide a username and 'true' or 'false'.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			username := args[0]
			makeAdmin := args[1] == "true"

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			res, err := conn.Exec(ctx,
				`
				UPDATE auth_user
				SET is_staff = $1
				WHERE LOWER(username) = LOWER($2)
				`,
				makeAdmin,
				username,
			)
			if err != nil {
				panic(err)
			}
			if res.RowsAffected() == 0 {
				fmt.Printf("User not found.\n\n")
				os.Exit(1)
			}

			fmt.Printf("Set is_staff to %v for %s.\n\n", makeAdmin, username)
		},
	}
	adminCommand.AddCommand(userSetAdminCommand)

	cleanupMessagesCommand := &cobra.Command{
		Use:   "cleanup-messages",
		Short: "Purge expired trash and delete messages both sides have discarded",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			cfg := config.Config.PrivateMsg
			res, err := privatemsg.DeleteDeletedMessages(ctx, conn, time.Now(), cfg.LogicalWindow(), cfg.PhysicalWindow())
			if err != nil {
				panic(err)
			}
			fmt.Printf("Deleted %d messages.\n", res.Deleted)
			fmt.Printf("Purged %d sender sides and %d recipient sides.\n", res.SenderPurged, res.RecipientPurged)
		},
	}
	adminCommand.AddCommand(cleanupMessagesCommand)

	var listKinds bool
	rerenderCommand := &cobra.Command{
		Use:   "rerender [kind...]",
		Short: "Re-render stored content of the given kinds, or of every kind",
		Run: func(cmd *cobra.Command, args []string) {
			handlers := website.RerenderHandlers()
			if listKinds {
				for _, kind := range rerender.Kinds(handlers) {
					fmt.Println(kind)
				}
				return
			}

			ctx := context.Background()
			conn := db.NewConnPool()
			defer conn.Close()

			results, err := rerender.RunAll(ctx, conn, handlers, args)
			kinds := make([]string, 0, len(results))
			for kind := range results {
				kinds = append(kinds, kind)
			}
			sort.Strings(kinds)
			for _, kind := range kinds {
				stats := results[kind]
				fmt.Printf("%-20s %6d rows, %d failed\n", kind, stats.Rows, stats.Failed)
			}
			if err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
		},
	}
	rerenderCommand.Flags().BoolVar(&listKinds, "list", false, "List the kinds of content that can be re-rendered")
	adminCommand.AddCommand(rerenderCommand)

	blockCommand := &cobra.Command{
		Use:   "block [username] [blocked username]",
		Short: "Stop a user from receiving private messages from another",
		Run: func(cmd *cobra.Command, args []string) {
			user, blocked, conn := twoUsers(cmd, args)
			defer conn.Close(context.Background())

			err := privatemsg.BlockUser(context.Background(), conn, user.ID, blocked.ID, time.Now())
			if err != nil {
				panic(err)
			}
			fmt.Printf("%s no longer receives messages from %s.\n", user.Username, blocked.Username)
		},
	}
	adminCommand.AddCommand(blockCommand)

	unblockCommand := &cobra.Command{
		Use:   "unblock [username] [blocked username]",
		Short: "Undo a block",
		Run: func(cmd *cobra.Command, args []string) {
			user, blocked, conn := twoUsers(cmd, args)
			defer conn.Close(context.Background())

			err := privatemsg.UnblockUser(context.Background(), conn, user.ID, blocked.ID)
			if err != nil {
				panic(err)
			}
			fmt.Printf("%s receives messages from %s again.\n", user.Username, blocked.Username)
		},
	}
	adminCommand.AddCommand(unblockCommand)

	sendMessageCommand := &cobra.Command{
		Use:   "sendmessage [from] [to] [subject] [body]...",
		Short: "Send a private message on someone's behalf, such as a staff announcement",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 4 {
				fmt.Printf("You must provide a sender, a recipient, a subject and a body.\n\n")
				cmd.Usage()
				os.Exit(1)
			}

			ctx := context.Background()
			conn := db.NewConn()
			defer conn.Close(ctx)

			sender, err := users.FetchUserByUsername(ctx, conn, args[0])
			if err != nil {
				fmt.Printf("Sender: %v\n", err)
				os.Exit(1)
			}

			n := notify.Direct{Sender: notify.NewSender(config.Config.Email)}
			msg, err := privatemsg.SendMessage(ctx, conn, n, sender, privatemsg.NewMessage{
				Recipients: []string{args[1]},
				Subject:    args[2],
				Body:       strings.Join(args[3:], " "),
			}, time.Now())
			if err != nil {
				fmt.Printf("ERROR: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Sent message %d.\n", msg.ID)
		},
	}
	adminCommand.AddCommand(sendMessageCommand)
}

func twoUsers(cmd *cobra.Command, args []string) (*models.User, *models.User, *pgx.Conn) {
	if len(args) < 2 {
		fmt.Printf("You must provide two usernames.\n\n")
		cmd.Usage()
		os.Exit(1)
	}

	ctx := context.Background()
	conn := db.NewConn()

	var found [2]*models.User
	for i, username := range args[:2] {
		user, err := users.FetchUserByUsername(ctx, conn, username)
		if errors.Is(err, db.NotFound) {
			fmt.Printf("User '%s' not found\n", username)
			os.Exit(1)
		} else if err != nil {
			panic(err)
		}
		found[i] = user
	}
	return found[0], found[1], conn
}
