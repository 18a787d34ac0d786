// Package fixture is the demo blog the live layer is mounted on: posts with
// comment trees, loaded from YAML or generated.
package fixture

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Comment is a comment with its replies
type Comment struct {
	ID       string    `yaml:"id"`
	Author   string    `yaml:"author"`
	Contents string    `yaml:"contents"`
	Replies  []Comment `yaml:"replies,omitempty"`
}

// Post is a blog post
type Post struct {
	ID       string    `yaml:"id"`
	Title    string    `yaml:"title"`
	Author   string    `yaml:"author"`
	Body     string    `yaml:"body"`
	Comments []Comment `yaml:"comments,omitempty"`
}

// Blog is the demo content
type Blog struct {
	Title string `yaml:"title"`
	Posts []Post `yaml:"posts"`
}

// Load reads a blog from a YAML file
func Load(path string) (*Blog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}

	var blog Blog
	if err := yaml.Unmarshal(data, &blog); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	if err := blog.validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture %s: %w", path, err)
	}

	return &blog, nil
}

// validate checks that ids are present and unique where the page needs them to be
func (b *Blog) validate() error {
	posts := make(map[string]bool, len(b.Posts))
	for _, p := range b.Posts {
		if p.ID == "" {
			return fmt.Errorf("post %q has no id", p.Title)
		}
		if posts[p.ID] {
			return fmt.Errorf("duplicate post id %q", p.ID)
		}
		posts[p.ID] = true

		comments := make(map[string]bool)
		if err := validateComments(p.Comments, comments); err != nil {
			return fmt.Errorf("post %s: %w", p.ID, err)
		}
	}
	return nil
}

func validateComments(list []Comment, seen map[string]bool) error {
	for _, c := range list {
		if c.ID == "" || strings.ContainsAny(c.ID, " \t\n") {
			return fmt.Errorf("invalid comment id %q", c.ID)
		}
		if seen[c.ID] {
			return fmt.Errorf("duplicate comment id %q", c.ID)
		}
		seen[c.ID] = true
		if err := validateComments(c.Replies, seen); err != nil {
			return err
		}
	}
	return nil
}

// Post returns the post with id
func (b *Blog) Post(id string) (Post, bool) {
	for _, p := range b.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return Post{}, false
}

// Generate builds a blog of n posts. The same non-zero seed gives the same blog.
func Generate(n int, seed uint64) *Blog {
	faker := gofakeit.New(seed)

	title := cases.Title(language.English)
	blog := &Blog{Title: "The " + title.String(faker.Word()) + " Journal"}
	for i := 1; i <= n; i++ {
		post := Post{
			ID:     strconv.Itoa(i),
			Title:  title.String(faker.Phrase()),
			Author: faker.Name(),
			Body:   faker.Phrase() + ". " + faker.Phrase() + ".",
		}

		next := 1
		for c := faker.IntRange(0, 4); c > 0; c-- {
			post.Comments = append(post.Comments, generateComment(faker, &next, 2))
		}
		blog.Posts = append(blog.Posts, post)
	}
	return blog
}

func generateComment(faker *gofakeit.Faker, next *int, depth int) Comment {
	c := Comment{
		ID:       strconv.Itoa(*next),
		Author:   faker.Name(),
		Contents: faker.Phrase(),
	}
	*next++

	if depth > 0 && faker.Bool() {
		for r := faker.IntRange(1, 2); r > 0; r-- {
			c.Replies = append(c.Replies, generateComment(faker, next, depth-1))
		}
	}
	return c
}
