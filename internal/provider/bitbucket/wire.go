package bitbucket

// Bitbucket Cloud (2.0) payloads.

type cloudBranchRef struct {
	Branch struct {
		Name string `json:"name"`
	} `json:"branch"`
}

type cloudPR struct {
	ID          int            `json:"id"`
	Title       string         `json:"title"`
	State       string         `json:"state"`
	Source      cloudBranchRef `json:"source"`
	Destination cloudBranchRef `json:"destination"`
	Links       struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"links"`
}

type cloudUser struct {
	Nickname    string `json:"nickname"`
	DisplayName string `json:"display_name"`
}

type cloudInline struct {
	Path string `json:"path"`
	To   *int   `json:"to,omitempty"`
}

type cloudContent struct {
	Raw string `json:"raw"`
}

type cloudComment struct {
	ID        int          `json:"id"`
	Content   cloudContent `json:"content"`
	User      *cloudUser   `json:"user"`
	CreatedOn string       `json:"created_on"`
	Deleted   bool         `json:"deleted"`
	Inline    *cloudInline `json:"inline"`
}

type cloudPage[T any] struct {
	Values []T    `json:"values"`
	Page   int    `json:"page"`
	Next   string `json:"next"`
}

type cloudCommentRequest struct {
	Content cloudContent `json:"content"`
	Inline  *cloudInline `json:"inline,omitempty"`
}

type cloudCreatePR struct {
	Title       string         `json:"title"`
	Source      cloudBranchRef `json:"source"`
	Destination cloudBranchRef `json:"destination"`
}

type cloudPRQuery struct {
	Q       string `url:"q"`
	PageLen int    `url:"pagelen"`
}

type cloudPageQuery struct {
	PageLen int `url:"pagelen"`
	Page    int `url:"page,omitempty"`
}

// Bitbucket Server / Data Center (REST 1.0) payloads.

type serverProject struct {
	Key string `json:"key"`
}

type serverRepo struct {
	Slug    string        `json:"slug"`
	Project serverProject `json:"project"`
}

type serverRef struct {
	ID         string      `json:"id"`
	DisplayID  string      `json:"displayId,omitempty"`
	Repository *serverRepo `json:"repository,omitempty"`
}

type serverPR struct {
	ID      int       `json:"id"`
	Title   string    `json:"title"`
	State   string    `json:"state"`
	FromRef serverRef `json:"fromRef"`
	ToRef   serverRef `json:"toRef"`
	Links   struct {
		Self []struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"links"`
}

type serverUser struct {
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type serverAnchor struct {
	Path     string `json:"path"`
	Line     int    `json:"line,omitempty"`
	LineType string `json:"lineType,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

type serverComment struct {
	ID          int             `json:"id"`
	Text        string          `json:"text"`
	Author      serverUser      `json:"author"`
	CreatedDate int64           `json:"createdDate"`
	Anchor      *serverAnchor   `json:"anchor,omitempty"`
	Comments    []serverComment `json:"comments"`
}

type serverActivity struct {
	Action        string         `json:"action"`
	CommentAction string         `json:"commentAction"`
	Comment       *serverComment `json:"comment"`
	CommentAnchor *serverAnchor  `json:"commentAnchor"`
}

type serverPage[T any] struct {
	Values        []T  `json:"values"`
	IsLastPage    bool `json:"isLastPage"`
	NextPageStart int  `json:"nextPageStart"`
}

type serverCommentRequest struct {
	Text   string        `json:"text"`
	Anchor *serverAnchor `json:"anchor,omitempty"`
}

type serverCreatePR struct {
	Title   string    `json:"title"`
	FromRef serverRef `json:"fromRef"`
	ToRef   serverRef `json:"toRef"`
}

type serverParticipant struct {
	User     serverUser `json:"user"`
	Approved bool       `json:"approved"`
	Status   string     `json:"status"`
}

type serverPRQuery struct {
	At        string `url:"at"`
	Direction string `url:"direction"`
	State     string `url:"state"`
	Limit     int    `url:"limit"`
}

type serverPageQuery struct {
	Start int `url:"start,omitempty"`
	Limit int `url:"limit"`
}
