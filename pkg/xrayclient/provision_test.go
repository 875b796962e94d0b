package xrayclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "xui-vpn-shop/internal/errors"
)

func TestAddClientCreatesClient(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)

	link, err := panel.client().AddClient(context.Background(), AddClientRequest{
		InboundID:    2,
		Email:        "carol",
		LimitIP:      2,
		TotalGB:      30,
		ExpiryTimeMs: 1767225600000,
		Flow:         "xtls-rprx-vision",
		Wait:         fastPolicy(time.Second),
	})
	require.NoError(t, err)

	clients := panel.storedClients(2)
	require.Len(t, clients, 3)
	created := clients[2]

	id := toString(created["id"])
	_, parseErr := uuid.Parse(id)
	require.NoError(t, parseErr)

	assert.Equal(t, "carol", created["email"])
	assert.Equal(t, int64(30*1024*1024*1024), toInt64(created["totalGB"]))
	assert.Equal(t, int64(1767225600000), toInt64(created["expiryTime"]))
	assert.Equal(t, int64(2), toInt64(created["limitIp"]))
	assert.Equal(t, "xtls-rprx-vision", created["flow"])
	assert.Equal(t, true, created["enable"])
	assert.NotEmpty(t, created["subId"])

	assert.Equal(t, fmt.Sprintf(
		"vless://%s@vpn.example.com:443?type=tcp&security=reality&pbk=PK1&fp=chrome&sni=example.com&sid=ab12&spx=%%2F&flow=xtls-rprx-vision#srv1-carol", id), link)

	path, body := panel.lastAdd()
	assert.Equal(t, "panel/inbound/addClient", path)
	assert.Equal(t, int64(2), toInt64(body["id"]))
	assert.IsType(t, "", body["settings"])
}

func TestAddClientUnlimited(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)

	_, err := panel.client().AddClient(context.Background(), AddClientRequest{
		InboundID: 2,
		Email:     "erin",
		Wait:      fastPolicy(time.Second),
	})
	require.NoError(t, err)

	clients := panel.storedClients(2)
	require.Len(t, clients, 3)
	assert.Equal(t, int64(0), toInt64(clients[2]["totalGB"]))
	assert.NotContains(t, clients[2], "flow")
}

func TestAddClientFallsBackToPathVariant(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)
	panel.set(func(p *fakePanel) { p.addClientFail["panel/inbound/addClient"] = true })

	_, err := panel.client().AddClient(context.Background(), AddClientRequest{
		InboundID: 2,
		Email:     "frank",
		TotalGB:   10,
		Wait:      fastPolicy(time.Second),
	})
	require.NoError(t, err)

	path, body := panel.lastAdd()
	assert.Equal(t, "panel/inbound/addClient/2", path)
	assert.NotContains(t, body, "id")
	assert.Equal(t, 1, panel.callCount("POST /secret/panel/inbound/addClient"))
	assert.Zero(t, panel.callCount("POST /secret/xui/inbound/addClient"))
	assert.Len(t, panel.storedClients(2), 3)
}

func TestAddClientAllVariantsFail(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)
	panel.set(func(p *fakePanel) {
		for _, variant := range addClientVariants(2) {
			p.addClientFail[variant.path] = true
		}
	})

	_, err := panel.client().AddClient(context.Background(), AddClientRequest{
		InboundID: 2,
		Email:     "gina",
		Wait:      fastPolicy(time.Second),
	})

	var provisionErr *apperrors.ProvisionError
	require.True(t, errors.As(err, &provisionErr), "got %v", err)
	assert.Equal(t, "gina", provisionErr.Email)
	assert.Contains(t, provisionErr.LastResponse, "404 page not found")

	var apiErr *apperrors.XrayAPIError
	assert.True(t, errors.As(err, &apiErr))

	assert.Equal(t, 1, panel.callCount("POST /secret/inbound/addClient"))
	assert.Len(t, panel.storedClients(2), 2)
}

func TestAddClientDuplicateReturnsExistingLink(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)

	link, err := panel.client().AddClient(context.Background(), AddClientRequest{
		InboundID: 2,
		Email:     "Alice ",
		TotalGB:   30,
		Wait:      fastPolicy(time.Second),
	})
	require.NoError(t, err)

	assert.Equal(t, aliceLink, link)
	assert.Len(t, panel.storedClients(2), 2)
	for _, variant := range addClientVariants(2) {
		assert.Zero(t, panel.callCount("POST /secret/"+variant.path))
	}
}

func TestAddClientMissingInbound(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)
	panel.addInbound(otherInboundJSON)

	_, err := panel.client().AddClient(context.Background(), AddClientRequest{
		InboundID: 9,
		Email:     "henry",
		Wait:      fastPolicy(time.Second),
	})

	var notFound *apperrors.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, []int{2, 5}, notFound.Available)
	assert.Contains(t, err.Error(), "available: 2, 5")
}

func TestAddClientRejectsEmptyEmail(t *testing.T) {
	panel := newFakePanel(t)

	_, err := panel.client().AddClient(context.Background(), AddClientRequest{InboundID: 2, Email: "   "})

	var validationErr *apperrors.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Zero(t, panel.loginCount())
}

func TestAddClientConcurrent(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)
	client := panel.client()

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.AddClient(context.Background(), AddClientRequest{
				InboundID: 2,
				Email:     fmt.Sprintf("user%d", i),
				TotalGB:   1,
				Wait:      fastPolicy(2 * time.Second),
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	emails := make(map[string]bool)
	for _, c := range panel.storedClients(2) {
		emails[strings.ToLower(toString(c["email"]))] = true
	}
	assert.Len(t, emails, n+2)
	assert.Equal(t, 1, panel.loginCount())
}

func TestAddClientLostReplyIsNotResent(t *testing.T) {
	panel := newFakePanel(t)
	panel.addInbound(realityInboundJSON)
	panel.set(func(p *fakePanel) { p.dropAddResponse = true })

	link, err := panel.client().AddClient(context.Background(), AddClientRequest{
		InboundID: 2,
		Email:     "dave",
		TotalGB:   30,
		Wait:      fastPolicy(time.Second),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(link, "#srv1-dave"), link)

	assert.Equal(t, 1, panel.callCount("POST /secret/panel/inbound/addClient"))
	for _, variant := range addClientVariants(2)[1:] {
		assert.Zero(t, panel.callCount("POST /secret/"+variant.path))
	}

	var daves int
	for _, c := range panel.storedClients(2) {
		if c["email"] == "dave" {
			daves++
		}
	}
	assert.Equal(t, 1, daves)
}
