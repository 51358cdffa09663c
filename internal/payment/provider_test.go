package payment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/noah-isme/backend-galeri/internal/cart"
	"github.com/noah-isme/backend-galeri/internal/settlement"
)

const testStripeSecret = "whsec_test_secret"

func stripeEventBody(t *testing.T, eventType, sessionID, paymentStatus string, md map[string]string, clientRef string) []byte {
	t.Helper()
	session := map[string]any{
		"id":             sessionID,
		"object":         "checkout.session",
		"payment_status": paymentStatus,
		"metadata":       md,
	}
	if clientRef != "" {
		session["client_reference_id"] = clientRef
	}
	body, err := json.Marshal(map[string]any{
		"id":     "evt_" + sessionID,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": session},
	})
	require.NoError(t, err)
	return body
}

func signStripe(body []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func testSnapshot() cart.Snapshot {
	return cart.Snapshot{Items: []cart.LineItem{
		{PhotoID: "p1", GalleryID: "g1"},
		{PhotoID: "p2", GalleryID: "g1"},
	}}
}

func TestHMACVerify(t *testing.T) {
	p := HMAC{SecretKey: "s3cret"}
	body := []byte(`{"externalId":"evt_1"}`)
	sig := p.Sign(body)

	require.NoError(t, p.Verify(body, sig))
	require.NoError(t, p.Verify(body, "  "+sig+"  "))
	require.ErrorIs(t, p.Verify(body, "deadbeef"), settlement.ErrSignatureInvalid)
	require.ErrorIs(t, p.Verify(body, ""), settlement.ErrSignatureInvalid)
	require.ErrorIs(t, p.Verify([]byte(`{"externalId":"evt_2"}`), sig), settlement.ErrSignatureInvalid)
	require.Error(t, HMAC{}.Verify(body, sig))
}

func TestHMACDecode(t *testing.T) {
	body := []byte(`{"externalId":" evt_1 ","userId":"u1","cart":{"items":[{"photoId":"p1","galleryId":"g1"}]}}`)
	ev, err := HMAC{}.Decode(body)
	require.NoError(t, err)
	require.Equal(t, "evt_1", ev.ExternalID)
	require.Equal(t, "u1", ev.UserID)
	require.Equal(t, HMACProviderName, ev.Provider)
	require.Equal(t, []cart.LineItem{{PhotoID: "p1", GalleryID: "g1"}}, ev.Cart.Items)
	require.Equal(t, body, ev.RawPayload)

	for name, raw := range map[string]string{
		"not json":     `{`,
		"no external":  `{"userId":"u1","cart":{"items":[{"photoId":"p1","galleryId":"g1"}]}}`,
		"no user":      `{"externalId":"e","cart":{"items":[{"photoId":"p1","galleryId":"g1"}]}}`,
		"empty cart":   `{"externalId":"e","userId":"u1","cart":{"items":[]}}`,
		"blank photo":  `{"externalId":"e","userId":"u1","cart":{"items":[{"photoId":"","galleryId":"g1"}]}}`,
		"repeat photo": `{"externalId":"e","userId":"u1","cart":{"items":[{"photoId":"p1","galleryId":"g1"},{"photoId":"p1","galleryId":"g1"}]}}`,
		"wrong shapes": `{"externalId":1,"userId":"u1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := HMAC{}.Decode([]byte(raw))
			require.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestStripeVerify(t *testing.T) {
	p := Stripe{WebhookSecret: testStripeSecret}
	body := []byte(`{"id":"evt_1"}`)

	require.NoError(t, p.Verify(body, signStripe(body)))
	require.ErrorIs(t, p.Verify(body, "t=1,v1=abc"), settlement.ErrSignatureInvalid)
	require.ErrorIs(t, p.Verify([]byte(`{"id":"evt_2"}`), signStripe(body)), settlement.ErrSignatureInvalid)

	old := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testStripeSecret,
		Timestamp: time.Now().Add(-time.Hour),
	})
	require.ErrorIs(t, p.Verify(body, old.Header), settlement.ErrSignatureInvalid)
	require.Error(t, Stripe{}.Verify(body, signStripe(body)))
}

func TestStripeDecodeCheckoutSession(t *testing.T) {
	md, err := CheckoutMetadata("", testSnapshot())
	require.NoError(t, err)

	body := stripeEventBody(t, "checkout.session.completed", "cs_test_1", "paid", md, "buyer-1")
	ev, err := Stripe{}.Decode(body)
	require.NoError(t, err)
	require.Equal(t, "cs_test_1", ev.ExternalID)
	require.Equal(t, "buyer-1", ev.UserID)
	require.Equal(t, StripeProviderName, ev.Provider)
	require.Equal(t, testSnapshot().Items, ev.Cart.Items)

	md, err = CheckoutMetadata("buyer-2", testSnapshot())
	require.NoError(t, err)
	body = stripeEventBody(t, "checkout.session.async_payment_succeeded", "cs_test_2", "paid", md, "")
	ev, err = Stripe{}.Decode(body)
	require.NoError(t, err)
	require.Equal(t, "buyer-2", ev.UserID)
}

func TestStripeDecodeIgnoresOtherEvents(t *testing.T) {
	md, err := CheckoutMetadata("buyer-1", testSnapshot())
	require.NoError(t, err)

	_, err = Stripe{}.Decode(stripeEventBody(t, "checkout.session.completed", "cs_1", "unpaid", md, ""))
	require.ErrorIs(t, err, ErrIgnoredEvent)

	_, err = Stripe{}.Decode(stripeEventBody(t, "payment_intent.created", "pi_1", "", nil, ""))
	require.ErrorIs(t, err, ErrIgnoredEvent)
}

func TestStripeDecodeMalformed(t *testing.T) {
	_, err := Stripe{}.Decode([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Stripe{}.Decode(stripeEventBody(t, "checkout.session.completed", "cs_1", "paid", map[string]string{}, "buyer-1"))
	require.ErrorIs(t, err, ErrMalformedPayload)

	md, err := cart.EncodeMetadata(testSnapshot())
	require.NoError(t, err)
	_, err = Stripe{}.Decode(stripeEventBody(t, "checkout.session.completed", "cs_1", "paid", md, ""))
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestVerifiersIndex(t *testing.T) {
	v := Verifiers(HMAC{SecretKey: "k"}, Stripe{WebhookSecret: "w"}, nil)
	require.Len(t, v, 2)
	require.Contains(t, v, HMACProviderName)
	require.Contains(t, v, StripeProviderName)
}
