package model

// Post は検索プロバイダーの投稿1件をフロントエンド向けの固定スキーマに
// 整形したものを表す。
type Post struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	CreatedDate string  `json:"created_date"`
	URL         string  `json:"url"`
}
