package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsEncodePreservesOrder(t *testing.T) {
	params := Params{}.
		With("symbol", "BTCUSDT").
		With("side", "BUY").
		With("quantity", "1")

	assert.Equal(t, "symbol=BTCUSDT&side=BUY&quantity=1", params.Encode())
}

func TestParamsEncodeEscapes(t *testing.T) {
	params := Params{}.With("note", "a b&c")
	assert.Equal(t, "note=a+b%26c", params.Encode())
}

func TestSignKnownVector(t *testing.T) {
	// Published reference vector for the HMAC-SHA256 request signature
	signer := NewSigner("NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j")

	params := Params{}.
		With("symbol", "LTCBTC").
		With("side", "BUY").
		With("type", "LIMIT").
		With("timeInForce", "GTC").
		With("quantity", "1").
		With("price", "0.1").
		With("recvWindow", "5000").
		With("timestamp", "1499827319559")

	assert.Equal(t,
		"c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71",
		signer.Sign(params))
}

func TestSignDeterministic(t *testing.T) {
	signer := NewSigner("secret")
	params := Params{}.With("symbol", "BTCUSDT").With("timestamp", "1700000000000")

	assert.Equal(t, signer.Sign(params), signer.Sign(params))
}

func TestSignOrderSensitive(t *testing.T) {
	signer := NewSigner("secret")
	a := Params{}.With("x", "1").With("y", "2")
	b := Params{}.With("y", "2").With("x", "1")

	assert.NotEqual(t, signer.Sign(a), signer.Sign(b))
}
