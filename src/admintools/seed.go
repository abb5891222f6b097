package admintools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"git.cdm.community/cdm/cdm/src/blog"
	"git.cdm.community/cdm/cdm/src/bugtracker"
	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/licenses"
	"git.cdm.community/cdm/cdm/src/migration"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/notify"
	"git.cdm.community/cdm/cdm/src/privatemsg"
	"git.cdm.community/cdm/cdm/src/snippets"
	"git.cdm.community/cdm/cdm/src/usernotes"
	"git.cdm.community/cdm/cdm/src/utils"
	lorem "github.com/HandmadeNetwork/golorem"
	"github.com/jackc/pgx/v5"
)

// Seeds the database with sample data for local dev. Everything is written in
// one transaction through the same code paths the site uses.
func SampleSeed() {
	migration.Migrate(migration.LatestVersion())

	ctx := context.Background()
	conn := db.NewConn()
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		panic(err)
	}
	defer tx.Rollback(ctx)

	// Sample content is spread over the last few months. Each step moves the
	// clock on so anti-flood never gets in the way.
	clock := time.Now().Add(-90 * 24 * time.Hour)
	tick := func() time.Time {
		clock = clock.Add(7 * time.Hour)
		return clock
	}

	fmt.Println("Creating users...")
	admin := seedUser(ctx, tx, models.User{Username: "admin", IsStaff: true, IsSuperuser: true})
	alice := seedUser(ctx, tx, models.User{Username: "alice", Permissions: []string{models.PermCanSeePreview}})
	bob := seedUser(ctx, tx, models.User{Username: "bob"})
	charlie := seedUser(ctx, tx, models.User{Username: "charlie"})

	fmt.Println("Creating the forum for article threads...")
	forumID := seedForum(ctx, tx, "Articles")

	fmt.Println("Creating licenses...")
	ccBySa := utils.Must1(licenses.SaveLicense(ctx, tx, changes.New(models.License{
		Name:        "CC BY-SA 4.0",
		Description: "You may share and adapt the material, as long as you give credit and share alike.",
		SourceUrl:   "https://creativecommons.org/licenses/by-sa/4.0/",
	}), tick()))
	utils.Must1(licenses.SaveLicense(ctx, tx, changes.New(models.License{
		Name:        "MIT",
		Description: lorem.Paragraph(1, 2),
		SourceUrl:   "https://opensource.org/license/mit/",
	}), tick()))

	fmt.Println("Creating categories and tags...")
	programming := utils.Must1(blog.SaveCategory(ctx, tx, changes.New(models.ArticleCategory{
		Name:        "Programming",
		Description: lorem.Sentence(5, 12),
	})))
	golang := utils.Must1(blog.SaveCategory(ctx, tx, changes.New(models.ArticleCategory{
		Name:     "Go",
		ParentID: &programming.ID,
	})))
	tutorial := utils.Must1(blog.SaveTag(ctx, tx, changes.New(models.ArticleTag{Name: "Tutorial"})))

	fmt.Println("Creating articles...")
	for i := 0; i < 5; i++ {
		status := models.ArticleStatusPublished
		var pubDate *time.Time
		if i == 4 {
			status = models.ArticleStatusDraft
		} else {
			pubDate = utils.Ptr(tick())
		}
		article := utils.Must1(blog.SaveArticle(ctx, tx, changes.New(models.Article{
			Title:       strings.TrimSuffix(lorem.Sentence(3, 6), "."),
			AuthorID:    alice.ID,
			Status:      status,
			PubDate:     pubDate,
			LicenseID:   &ccBySa.ID,
			Description: lorem.Sentence(8, 16),
			Content:     loremParagraphs(4),

			AutoCreateRelatedForumThread: true,
		}), blog.SaveArticleOptions{
			CurrentUser:   alice,
			Now:           clock,
			ParentForumID: &forumID,
		}))
		utils.Must(blog.SetArticleCategories(ctx, tx, article.ID, []int{golang.ID}))
		utils.Must(blog.SetArticleTags(ctx, tx, article.ID, []int{tutorial.ID}))
	}

	fmt.Println("Creating tickets...")
	ticket := utils.Must1(bugtracker.CreateTicket(ctx, tx, notify.Discard, bob,
		models.NewIssueTicket(bob.ID, "The archive page skips a month", loremParagraphs(2)),
		bugtracker.CreateTicketOptions{Now: tick()},
	))
	for _, author := range []*models.User{charlie, admin, bob, admin} {
		utils.Must1(bugtracker.PostComment(ctx, tx, notify.Discard, ticket.ID, author, lorem.Paragraph(1, 2),
			bugtracker.CommentOptions{Now: tick()},
		))
	}

	fmt.Println("Creating snippets...")
	utils.Must1(snippets.SaveSnippet(ctx, tx, changes.New(snippets.NewSnippet(
		charlie.ID, "Hello, world", "main.go", "go",
		"package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"Hello, world\")\n}\n",
	)), tick()))
	fizzbuzz := snippets.NewSnippet(
		bob.ID, "FizzBuzz", "fizzbuzz.py", "python",
		"for i in range(1, 101):\n    print('Fizz' * (i % 3 == 0) + 'Buzz' * (i % 5 == 0) or i)\n",
	)
	fizzbuzz.Description = lorem.Sentence(6, 12)
	fizzbuzz.HighlightLines = "2"
	utils.Must1(snippets.SaveSnippet(ctx, tx, changes.New(fizzbuzz), tick()))

	fmt.Println("Creating private messages...")
	msg := utils.Must1(privatemsg.SendMessage(ctx, tx, notify.Discard, alice, privatemsg.NewMessage{
		Recipients: []string{bob.Username},
		Subject:    strings.TrimSuffix(lorem.Sentence(2, 5), "."),
		Body:       lorem.Paragraph(1, 3),
	}, tick()))
	utils.Must1(privatemsg.ReplyToMessage(ctx, tx, notify.Discard, bob, msg.ID, "", lorem.Paragraph(1, 2), tick()))

	fmt.Println("Creating user notes...")
	utils.Must1(usernotes.SaveUserNote(ctx, tx, admin, changes.New(models.UserNote{
		Title:        "Warned about off-topic posts",
		TargetUserID: charlie.ID,
		Description:  lorem.Sentence(6, 14),
		Sticky:       true,
	}), tick()))

	err = tx.Commit(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Println("Done!")
}

func seedUser(ctx context.Context, conn db.ConnOrTx, input models.User) *models.User {
	if input.Permissions == nil {
		input.Permissions = []string{}
	}
	user, err := db.QueryOne[models.User](ctx, conn,
		`
		INSERT INTO auth_user (username, email, is_staff, is_superuser, permissions, date_joined)
		VALUES ($1, $2, $3, $4, $5, '2017-01-01T00:00:00Z')
		RETURNING $columns
		`,
		input.Username,
		utils.OrDefault(input.Email, fmt.Sprintf("%s@example.com", input.Username)),
		input.IsStaff,
		input.IsSuperuser,
		input.Permissions,
	)
	if err != nil {
		panic(err)
	}
	return user
}

func seedForum(ctx context.Context, tx pgx.Tx, title string) int {
	var id int
	err := tx.QueryRow(ctx,
		`
		INSERT INTO forum (title, slug)
		VALUES ($1, $2)
		RETURNING id
		`,
		title,
		strings.ToLower(title),
	).Scan(&id)
	if err != nil {
		panic(err)
	}
	return id
}

func loremParagraphs(n int) string {
	paragraphs := make([]string, n)
	for i := range paragraphs {
		paragraphs[i] = lorem.Paragraph(2, 5)
	}
	return strings.Join(paragraphs, "\n\n")
}
