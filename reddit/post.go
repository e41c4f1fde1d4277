package reddit

import "time"

// Post is the read-only view of a submission as the bot sees it. Author is
// empty when the account has been deleted.
type Post struct {
	ID                string
	Fullname          string
	Title             string
	Author            string
	CreatedUTC        time.Time
	Distinguished     bool
	FlairText         string
	FlairClass        string
	IsSelf            bool
	IsOriginalContent bool
}

type listing struct {
	Data struct {
		Children []struct {
			Data listingPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingPost struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"` // fullname, e.g. "t3_abc123"
	Title             string  `json:"title"`
	Author            string  `json:"author"`
	CreatedUTC        float64 `json:"created_utc"`
	Distinguished     string  `json:"distinguished"`
	LinkFlairText     string  `json:"link_flair_text"`
	LinkFlairCSSClass string  `json:"link_flair_css_class"`
	IsSelf            bool    `json:"is_self"`
	IsOriginalContent bool    `json:"is_original_content"`
}

func (lp listingPost) post() Post {
	author := lp.Author
	if author == "[deleted]" {
		author = ""
	}

	return Post{
		ID:                lp.ID,
		Fullname:          lp.Name,
		Title:             lp.Title,
		Author:            author,
		CreatedUTC:        time.Unix(int64(lp.CreatedUTC), 0).UTC(),
		Distinguished:     lp.Distinguished != "",
		FlairText:         lp.LinkFlairText,
		FlairClass:        lp.LinkFlairCSSClass,
		IsSelf:            lp.IsSelf,
		IsOriginalContent: lp.IsOriginalContent,
	}
}
