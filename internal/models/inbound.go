package models

// Inbound represents an X-ray inbound configuration.
// Raw holds the object exactly as the panel returned it.
type Inbound struct {
	ID             int
	Port           int
	Protocol       string
	Remark         string
	Enable         bool
	Tag            string
	Settings       any
	StreamSettings any
	Sniffing       any
	ClientStats    []ClientStat
	Raw            map[string]any
}

// ClientStat represents statistics for a client
type ClientStat struct {
	ID         int    `json:"id"`
	InboundID  int    `json:"inboundId"`
	Enable     bool   `json:"enable"`
	Email      string `json:"email"`
	Up         int64  `json:"up"`
	Down       int64  `json:"down"`
	ExpiryTime int64  `json:"expiryTime"`
	Total      int64  `json:"total"`
	Reset      int64  `json:"reset"`
}

// StatFor returns the traffic statistics row for the given email, if present
func (i *Inbound) StatFor(email string) (ClientStat, bool) {
	for _, stat := range i.ClientStats {
		if stat.Email == email {
			return stat, true
		}
	}
	return ClientStat{}, false
}
