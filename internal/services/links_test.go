package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "xui-vpn-shop/internal/errors"
)

func newTestNotifier(panel *fakePanelClient, messenger Messenger) *LinkNotifier {
	cfg := testConfig()
	xray := NewXrayServiceWithClient(panel, cfg, testLogger())
	return NewLinkNotifier(xray, messenger, cfg.Link, testLogger())
}

func timeoutErr() error {
	return &apperrors.LinkResolutionTimeoutError{InboundID: testInboundID, Email: "bob"}
}

func TestDeliverSendsLink(t *testing.T) {
	panel := newFakePanelClient()
	messenger := &fakeMessenger{}
	notifier := newTestNotifier(panel, messenger)

	notifier.Deliver(context.Background(), 7, "bob")
	notifier.Wait()

	links := messenger.sentLinks()
	require.Len(t, links, 1)
	assert.Equal(t, int64(7), links[0].chatID)
	assert.Equal(t, "vless://bob", links[0].text)
	assert.Empty(t, messenger.sentTexts())
}

func TestDeliverRetriesAfterTimeout(t *testing.T) {
	panel := newFakePanelClient()
	panel.linkErrs = []error{timeoutErr()}
	messenger := &fakeMessenger{}
	notifier := newTestNotifier(panel, messenger)

	notifier.Deliver(context.Background(), 7, "bob")
	notifier.Wait()

	texts := messenger.sentTexts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0].text, "not ready yet")
	assert.Len(t, messenger.sentLinks(), 1)
	assert.Equal(t, 2, panel.resolves)
}

func TestDeliverGivesUp(t *testing.T) {
	panel := newFakePanelClient()
	panel.linkErrs = []error{timeoutErr(), timeoutErr(), timeoutErr()}
	messenger := &fakeMessenger{}
	notifier := newTestNotifier(panel, messenger)

	notifier.Deliver(context.Background(), 7, "bob")
	notifier.Wait()

	texts := messenger.sentTexts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1].text, "try again later")
	assert.Empty(t, messenger.sentLinks())
	assert.Equal(t, 2, panel.resolves)
}

func TestDeliverReportsOtherErrors(t *testing.T) {
	panel := newFakePanelClient()
	panel.linkErrs = []error{errors.New("boom")}
	messenger := &fakeMessenger{}
	notifier := newTestNotifier(panel, messenger)

	notifier.Deliver(context.Background(), 7, "bob")
	notifier.Wait()

	texts := messenger.sentTexts()
	require.Len(t, texts, 1)
	assert.Equal(t, "Failed to get the key: boom", texts[0].text)
	assert.Equal(t, 1, panel.resolves)
}

func TestDeliverStopsWhenCancelled(t *testing.T) {
	panel := newFakePanelClient()
	panel.linkErrs = []error{timeoutErr()}
	messenger := &fakeMessenger{}
	notifier := newTestNotifier(panel, messenger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	notifier.Deliver(ctx, 7, "bob")
	notifier.Wait()

	assert.Empty(t, messenger.sentTexts())
	assert.Empty(t, messenger.sentLinks())
}
