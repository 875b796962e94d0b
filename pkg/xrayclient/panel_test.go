package xrayclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"xui-vpn-shop/internal/config"
)

const (
	testUser     = "admin"
	testPassword = "secret-pass"
	testLinkHost = "vpn.example.com"
)

// fakePanel is an in-memory 3x-ui panel mounted under /secret
type fakePanel struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	inbounds map[int]map[string]interface{}
	session  string
	logins   int
	calls    map[string]int

	// behaviour switches
	listBare        bool
	listStatus      int
	hiddenFromList  map[int]bool
	getPathStatus   int
	getQueryStatus  int
	addClientFail   map[string]bool
	updateReject    bool
	omitLoginCookie bool
	revealAfter     int
	dropAddResponse bool
	pending         []pendingClient
	lastAddBody     map[string]interface{}
	lastAddPath     string
}

type pendingClient struct {
	inboundID int
	client    map[string]interface{}
	countdown int
}

func newFakePanel(t *testing.T) *fakePanel {
	t.Helper()

	p := &fakePanel{
		t:              t,
		inbounds:       make(map[int]map[string]interface{}),
		calls:          make(map[string]int),
		hiddenFromList: make(map[int]bool),
		addClientFail:  make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /secret/login", p.handleLogin)
	mux.HandleFunc("POST /secret/panel/inbound/list", p.authorized(p.handleList))
	mux.HandleFunc("GET /secret/panel/inbound/get/{id}", p.authorized(p.handleGetPath))
	mux.HandleFunc("GET /secret/panel/inbound/get", p.authorized(p.handleGetQuery))
	mux.HandleFunc("POST /secret/panel/inbound/addClient", p.authorized(p.handleAddClient))
	mux.HandleFunc("POST /secret/panel/inbound/addClient/{id}", p.authorized(p.handleAddClient))
	mux.HandleFunc("POST /secret/xui/inbound/addClient", p.authorized(p.handleAddClient))
	mux.HandleFunc("POST /secret/inbound/addClient", p.authorized(p.handleAddClient))
	mux.HandleFunc("POST /secret/panel/inbound/update/{id}", p.authorized(p.handleUpdate))

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePanel) client() *Client {
	return p.clientWithHost(testLinkHost)
}

func (p *fakePanel) clientWithHost(host string) *Client {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewClient(config.ServerConfig{
		User:      testUser,
		Password:  testPassword,
		APIURL:    p.server.URL + "/secret/panel",
		InboundID: 2,
		LinkHost:  host,
	}, logger)
}

// addInbound registers an inbound built from JSON so numbers stay json.Number
func (p *fakePanel) addInbound(rawJSON string) {
	p.t.Helper()
	parsed, err := decodeJSON([]byte(rawJSON))
	require.NoError(p.t, err)

	m := parsed.(map[string]interface{})
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inbounds[int(toInt64(m["id"]))] = m
}

// set changes behaviour switches under the panel lock
func (p *fakePanel) set(fn func(p *fakePanel)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakePanel) lastAdd() (string, map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAddPath, p.lastAddBody
}

func (p *fakePanel) callCount(route string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[route]
}

func (p *fakePanel) loginCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

func (p *fakePanel) expireSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = ""
}

// storedClients returns the clients currently saved for an inbound
func (p *fakePanel) storedClients(id int) []map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientsLocked(id)
}

func (p *fakePanel) storedInbound(id int) map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inbounds[id]
}

func (p *fakePanel) clientsLocked(id int) []map[string]interface{} {
	inbound, ok := p.inbounds[id]
	if !ok {
		return nil
	}
	var clients []map[string]interface{}
	for _, item := range decodeList(Normalize(inbound["settings"])["clients"]) {
		if m, ok := item.(map[string]interface{}); ok {
			clients = append(clients, m)
		}
	}
	return clients
}

func (p *fakePanel) setClientsLocked(id int, clients []map[string]interface{}) {
	settings := Normalize(p.inbounds[id]["settings"])
	settings["clients"] = clients
	data, _ := json.Marshal(settings)
	p.inbounds[id]["settings"] = string(data)
}

func (p *fakePanel) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.calls[r.Method+" "+r.URL.Path]++
		session := p.session
		p.mu.Unlock()

		cookie, err := r.Cookie("3x-ui")
		if err != nil || session == "" || cookie.Value != session {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (p *fakePanel) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.logins++

	if r.PostForm.Get("username") != testUser || r.PostForm.Get("password") != testPassword {
		writeJSON(w, map[string]interface{}{"success": false, "msg": "wrong username or password"})
		return
	}

	if !p.omitLoginCookie {
		p.session = fmt.Sprintf("session-%d", p.logins)
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: p.session, Path: "/"})
	}
	writeJSON(w, map[string]interface{}{"success": true, "msg": "Login Successfully"})
}

func (p *fakePanel) handleList(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.revealPendingLocked()

	if p.listStatus != 0 {
		w.WriteHeader(p.listStatus)
		return
	}

	ids := make([]int, 0, len(p.inbounds))
	for id := range p.inbounds {
		if !p.hiddenFromList[id] {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	list := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		list = append(list, p.inbounds[id])
	}

	if p.listBare {
		writeJSON(w, list)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "msg": "", "obj": list})
}

func (p *fakePanel) revealPendingLocked() {
	remaining := p.pending[:0]
	for _, pc := range p.pending {
		pc.countdown--
		if pc.countdown > 0 {
			remaining = append(remaining, pc)
			continue
		}
		p.setClientsLocked(pc.inboundID, append(p.clientsLocked(pc.inboundID), pc.client))
	}
	p.pending = remaining
}

func (p *fakePanel) handleGetPath(w http.ResponseWriter, r *http.Request) {
	p.writeSingle(w, r.PathValue("id"), p.getPathStatus)
}

func (p *fakePanel) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	p.writeSingle(w, r.URL.Query().Get("id"), p.getQueryStatus)
}

func (p *fakePanel) writeSingle(w http.ResponseWriter, rawID string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	id, _ := strconv.Atoi(rawID)
	inbound, ok := p.inbounds[id]
	if !ok {
		writeJSON(w, map[string]interface{}{"success": false, "msg": "not found"})
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "obj": inbound})
}

func (p *fakePanel) handleAddClient(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastAddBody = body
	p.lastAddPath = strings.TrimPrefix(r.URL.Path, "/secret/")

	if p.addClientFail[p.lastAddPath] {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("404 page not found"))
		return
	}

	rawID := r.PathValue("id")
	if rawID == "" {
		rawID = toString(body["id"])
	}
	id, _ := strconv.Atoi(rawID)
	if _, ok := p.inbounds[id]; !ok {
		writeJSON(w, map[string]interface{}{"success": false, "msg": "inbound not found"})
		return
	}

	settings := Normalize(body["settings"])
	for _, item := range decodeList(settings["clients"]) {
		client, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if p.revealAfter > 0 {
			p.pending = append(p.pending, pendingClient{inboundID: id, client: client, countdown: p.revealAfter})
			continue
		}
		p.setClientsLocked(id, append(p.clientsLocked(id), client))
	}

	if p.dropAddResponse {
		// applied, but the connection dies before the reply
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
	}

	writeJSON(w, map[string]interface{}{"success": true, "msg": "Client(s) added Successfully"})
}

func (p *fakePanel) handleUpdate(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	parsed, err := decodeJSON(data)
	payload, ok := parsed.(map[string]interface{})
	if err != nil || !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.updateReject {
		writeJSON(w, map[string]interface{}{"success": false, "msg": "update rejected"})
		return
	}

	id, _ := strconv.Atoi(r.PathValue("id"))
	old, ok := p.inbounds[id]
	if !ok {
		writeJSON(w, map[string]interface{}{"success": false, "msg": "inbound not found"})
		return
	}
	if stats, ok := old["clientStats"]; ok {
		payload["clientStats"] = stats
	}
	p.inbounds[id] = payload

	writeJSON(w, map[string]interface{}{"success": true, "msg": "Inbound updated"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// realityInboundJSON is inbound 2 of the documented scenario with one client "alice"
const realityInboundJSON = `{
	"id": 2,
	"up": 1024,
	"down": 2048,
	"total": 0,
	"remark": "srv1",
	"enable": true,
	"expiryTime": 0,
	"listen": "",
	"port": 443,
	"protocol": "vless",
	"settings": "{\"clients\":[{\"id\":\"11111111-2222-3333-4444-555555555555\",\"email\":\"alice\",\"flow\":\"xtls-rprx-vision\",\"limitIp\":2,\"totalGB\":0,\"expiryTime\":0,\"enable\":true,\"subId\":\"sub-alice\"},{\"id\":\"66666666-7777-8888-9999-000000000000\",\"email\":\"bob\",\"flow\":\"\",\"limitIp\":1,\"totalGB\":10737418240,\"expiryTime\":1767225600000,\"enable\":true}],\"decryption\":\"none\",\"fallbacks\":[]}",
	"streamSettings": "{\"network\":\"tcp\",\"security\":\"reality\",\"realitySettings\":{\"show\":false,\"dest\":\"example.com:443\",\"serverNames\":[\"example.com\"],\"privateKey\":\"PRIV\",\"shortIds\":[\"ab12\",\"cd34\"],\"settings\":{\"publicKey\":\"PK1\",\"fingerprint\":\"firefox\"}},\"tlsSettings\":{\"fingerprint\":\"chrome\"}}",
	"tag": "inbound-443",
	"sniffing": "{\"enabled\":true,\"destOverride\":[\"http\",\"tls\"]}",
	"clientStats": [{"id": 1, "inboundId": 2, "enable": true, "email": "alice", "up": 100, "down": 200, "expiryTime": 0, "total": 0}]
}`

const otherInboundJSON = `{
	"id": 5,
	"remark": "",
	"enable": true,
	"port": 8443,
	"protocol": "vless",
	"settings": "{\"clients\":[]}",
	"streamSettings": "{\"realitySettings\":{\"publicKey\":\"PK5\",\"shortIds\":[],\"serverNames\":[]}}",
	"tag": "inbound-8443",
	"sniffing": "{}"
}`
