package status

import (
	"sort"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

const Collection = "status"

type Post struct {
	ID             string          `json:"id,omitempty"`
	Author         user.ContactRef `json:"author"`
	MediaURL       string          `json:"mediaUrl"`
	PostedAtMillis int64           `json:"postedAtMillis"`
}

// AuthorPosts are one contact's visible posts, oldest first.
type AuthorPosts struct {
	Author user.ContactRef `json:"author"`
	Posts  []Post          `json:"posts"`
}

type Groups struct {
	Own    []Post        `json:"own"`
	Others []AuthorPosts `json:"others"`
}

// Group splits posts into the self user's own and everyone else's, one
// entry per author in order of their first post.
func Group(posts []Post, self string) Groups {
	g := Groups{Own: []Post{}, Others: []AuthorPosts{}}
	index := make(map[string]int)
	for _, p := range posts {
		if p.Author.UserID == self {
			g.Own = append(g.Own, p)
			continue
		}
		i, ok := index[p.Author.UserID]
		if !ok {
			i = len(g.Others)
			index[p.Author.UserID] = i
			g.Others = append(g.Others, AuthorPosts{Author: p.Author})
		}
		g.Others[i].Posts = append(g.Others[i].Posts, p)
	}
	return g
}

func sortPosts(posts []Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].PostedAtMillis != posts[j].PostedAtMillis {
			return posts[i].PostedAtMillis < posts[j].PostedAtMillis
		}
		return posts[i].ID < posts[j].ID
	})
}

func decodePost(doc docstore.Document) (Post, error) {
	var p Post
	if err := doc.Decode(&p); err != nil {
		return Post{}, err
	}
	p.ID = doc.ID
	return p, nil
}
