package alist

// Wire types for the Alist v3 JSON API. Only the fields the client reads
// are declared; the server sends more.

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginData struct {
	Token string `json:"token"`
}

type listRequest struct {
	Path     string `json:"path"`
	Password string `json:"password,omitempty"`
	Page     int    `json:"page"`
	PerPage  int    `json:"per_page"`
	Refresh  bool   `json:"refresh"`
}

type listData struct {
	Content []fsEntry `json:"content"`
	Total   int       `json:"total"`
}

type fsEntry struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	IsDir    bool   `json:"is_dir"`
	Modified string `json:"modified"`
	Sign     string `json:"sign"`
}

type getRequest struct {
	Path     string `json:"path"`
	Password string `json:"password,omitempty"`
}

type getData struct {
	RawURL string `json:"raw_url"`
	Sign   string `json:"sign"`
}
