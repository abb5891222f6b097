package blog

import (
	"context"
	"errors"

	"git.cdm.community/cdm/cdm/src/changes"
	"git.cdm.community/cdm/cdm/src/db"
	"git.cdm.community/cdm/cdm/src/models"
	"git.cdm.community/cdm/cdm/src/oops"
	"git.cdm.community/cdm/cdm/src/parsing"
	"git.cdm.community/cdm/cdm/src/slugs"
	"github.com/jackc/pgx/v5"
)

var (
	ErrCategoryNotFound = oops.NewCoded(oops.KindNotFound, "category_not_found", "no such category")
	ErrCategoryCycle    = oops.NewCoded(oops.KindValidation, "category_cycle", "a category cannot be moved below itself")
)

const categorySlugConstraint = "blog_article_category_parent_slug_key"

// The path of slugs from the root down to a category with the given slug.
func BuildSlugHierarchy(parent *models.ArticleCategory, slug string) string {
	if parent == nil {
		return slug
	}
	return parent.SlugHierarchy + "/" + slug
}

/*
Recomputes the slug hierarchy of every category below root, given root's
current hierarchy and the subtree as it is stored. Categories whose hierarchy
changed are updated in place and returned, parents before children.
*/
func RecomputeHierarchies(root *models.ArticleCategory, subtree []*models.ArticleCategory) []*models.ArticleCategory {
	children := make(map[int][]*models.ArticleCategory)
	for _, c := range subtree {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	var changed []*models.ArticleCategory
	visited := map[int]bool{root.ID: true}
	queue := []*models.ArticleCategory{root}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]
		for _, child := range children[parent.ID] {
			if visited[child.ID] {
				continue
			}
			visited[child.ID] = true

			hierarchy := BuildSlugHierarchy(parent, child.Slug)
			if hierarchy != child.SlugHierarchy {
				child.SlugHierarchy = hierarchy
				changed = append(changed, child)
			}
			queue = append(queue, child)
		}
	}
	return changed
}

// Whether putting category selfID below the category whose ancestor chain is
// given (the new parent first, then its parent, up to the root) would create
// a cycle.
func wouldCycle(selfID int, ancestors []int) bool {
	if selfID == 0 {
		return false
	}
	for _, id := range ancestors {
		if id == selfID {
			return true
		}
	}
	return false
}

/*
Saves a category. The slug is unique among its siblings and the slug
hierarchy is rebuilt from the parent. If the slug or parent of an existing
category changed, the hierarchies of all its descendants are rewritten in
the same transaction, with the subtree locked.
*/
func SaveCategory(
	ctx context.Context,
	conn db.ConnOrTx,
	edit changes.Edit[models.ArticleCategory],
) (*models.ArticleCategory, error) {
	if err := models.Validate(edit.Current); err != nil {
		return nil, err
	}

	c := edit.Current
	if !edit.IsNew() {
		c.ID = edit.Original.ID
	}
	desc := parsing.Render(c.Description, parsing.TaxonomyDescriptionOptions)
	c.DescriptionHtml = desc.HTML
	c.DescriptionText = desc.Text

	var saved *models.ArticleCategory
	err := slugs.Retry(ctx, categorySlugConstraint, func(attempt int) error {
		return db.WithTx(ctx, conn, func(tx pgx.Tx) error {
			category := c

			// Compared against the stored hierarchy, which another save may
			// have changed since the caller loaded this category.
			var stored *models.ArticleCategory
			if !edit.IsNew() {
				var err error
				stored, err = fetchCategoryForUpdate(ctx, tx, category.ID)
				if err != nil {
					return err
				}
			}

			var parent *models.ArticleCategory
			if category.ParentID != nil {
				if *category.ParentID == category.ID {
					return ErrCategoryCycle
				}
				ancestors, err := fetchAncestorIDs(ctx, tx, *category.ParentID)
				if err != nil {
					return err
				}
				if wouldCycle(category.ID, ancestors) {
					return ErrCategoryCycle
				}
				parent, err = fetchCategoryForUpdate(ctx, tx, *category.ParentID)
				if err != nil {
					return err
				}
			}

			slug, err := slugs.Allocate(ctx, tx, slugs.Scope{
				Table:     "blog_article_category",
				ExcludeID: category.ID,
				Where:     "COALESCE(parent_id, 0) = $?",
				WhereArgs: []any{parentIDOrZero(category.ParentID)},
			}, category.Slug, category.Name)
			if err != nil {
				return err
			}
			category.Slug = slug
			category.SlugHierarchy = BuildSlugHierarchy(parent, slug)

			if edit.IsNew() {
				saved, err = db.QueryOne[models.ArticleCategory](ctx, tx,
					`
					INSERT INTO blog_article_category (
						parent_id, name, slug, slug_hierarchy,
						description, description_html, description_text, logo
					)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
					RETURNING $columns
					`,
					category.ParentID, category.Name, category.Slug, category.SlugHierarchy,
					category.Description, category.DescriptionHtml, category.DescriptionText, category.Logo,
				)
				if err != nil {
					return oops.New(err, "failed to insert category")
				}
				return nil
			}

			saved, err = db.QueryOne[models.ArticleCategory](ctx, tx,
				`
				UPDATE blog_article_category
				SET
					parent_id = $2, name = $3, slug = $4, slug_hierarchy = $5,
					description = $6, description_html = $7, description_text = $8, logo = $9
				WHERE id = $1
				RETURNING $columns
				`,
				category.ID,
				category.ParentID, category.Name, category.Slug, category.SlugHierarchy,
				category.Description, category.DescriptionHtml, category.DescriptionText, category.Logo,
			)
			if errors.Is(err, db.NotFound) {
				return ErrCategoryNotFound
			} else if err != nil {
				return oops.New(err, "failed to update category %d", category.ID)
			}

			if saved.SlugHierarchy != stored.SlugHierarchy {
				return cascadeHierarchy(ctx, tx, saved)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func parentIDOrZero(id *int) int {
	if id == nil {
		return 0
	}
	return *id
}

func cascadeHierarchy(ctx context.Context, tx pgx.Tx, root *models.ArticleCategory) error {
	subtree, err := db.Query[models.ArticleCategory](ctx, tx,
		`
		---- Lock category subtree
		WITH RECURSIVE subtree (id) AS (
			SELECT id FROM blog_article_category WHERE parent_id = $1
			UNION
			SELECT c.id
			FROM blog_article_category AS c
			JOIN subtree ON c.parent_id = subtree.id
		)
		SELECT $columns
		FROM blog_article_category
		WHERE id IN (SELECT id FROM subtree)
		FOR UPDATE
		`,
		root.ID,
	)
	if err != nil {
		return oops.New(err, "failed to lock descendants of category %d", root.ID)
	}

	for _, c := range RecomputeHierarchies(root, subtree) {
		_, err := tx.Exec(ctx,
			`
			UPDATE blog_article_category
			SET slug_hierarchy = $1
			WHERE id = $2
			`,
			c.SlugHierarchy,
			c.ID,
		)
		if err != nil {
			return oops.New(err, "failed to update hierarchy of category %d", c.ID)
		}
	}
	return nil
}

// The ids from the given category up to its root, starting with the category
// itself.
func fetchAncestorIDs(ctx context.Context, conn db.ConnOrTx, id int) ([]int, error) {
	ids, err := db.QueryScalar[int](ctx, conn,
		`
		---- Fetch category ancestors
		WITH RECURSIVE ancestors (id, parent_id, depth) AS (
			SELECT id, parent_id, 0 FROM blog_article_category WHERE id = $1
			UNION ALL
			SELECT c.id, c.parent_id, ancestors.depth + 1
			FROM blog_article_category AS c
			JOIN ancestors ON c.id = ancestors.parent_id
			WHERE ancestors.depth < 1000
		)
		SELECT id FROM ancestors
		ORDER BY depth
		`,
		id,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch ancestors of category %d", id)
	}
	if len(ids) == 0 {
		return nil, ErrCategoryNotFound
	}
	return ids, nil
}

func fetchCategoryForUpdate(ctx context.Context, tx pgx.Tx, id int) (*models.ArticleCategory, error) {
	c, err := db.QueryOne[models.ArticleCategory](ctx, tx,
		`
		---- Lock category
		SELECT $columns
		FROM blog_article_category
		WHERE id = $1
		FOR UPDATE
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrCategoryNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch category %d", id)
	}
	return c, nil
}

func FetchCategory(ctx context.Context, conn db.ConnOrTx, id int) (*models.ArticleCategory, error) {
	c, err := db.QueryOne[models.ArticleCategory](ctx, conn,
		`
		---- Fetch category
		SELECT $columns
		FROM blog_article_category
		WHERE id = $1
		`,
		id,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrCategoryNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch category %d", id)
	}
	return c, nil
}

func FetchCategoryByHierarchy(ctx context.Context, conn db.ConnOrTx, hierarchy string) (*models.ArticleCategory, error) {
	c, err := db.QueryOne[models.ArticleCategory](ctx, conn,
		`
		---- Fetch category by hierarchy
		SELECT $columns
		FROM blog_article_category
		WHERE slug_hierarchy = $1
		`,
		hierarchy,
	)
	if errors.Is(err, db.NotFound) {
		return nil, ErrCategoryNotFound
	} else if err != nil {
		return nil, oops.New(err, "failed to fetch category %s", hierarchy)
	}
	return c, nil
}

// All categories, in tree order.
func FetchCategories(ctx context.Context, conn db.ConnOrTx) ([]*models.ArticleCategory, error) {
	categories, err := db.Query[models.ArticleCategory](ctx, conn,
		`
		---- Fetch categories
		SELECT $columns
		FROM blog_article_category
		ORDER BY slug_hierarchy
		`,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch categories")
	}
	return categories, nil
}
