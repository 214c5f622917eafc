package botcash

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/botcash/nostr-bridge/src/common"
)

type rpcCall struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// newTestNode serves canned JSON-RPC results keyed by method name and records
// every call it receives.
func newTestNode(t *testing.T, results map[string]interface{}) (*RPCClient, *[]rpcCall) {
	calls := &[]rpcCall{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			t.Fatal(err)
		}
		*calls = append(*calls, call)

		result, ok := results[call.Method]
		if !ok {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"code": -32601, "message": "Method not found"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
	}))
	t.Cleanup(server.Close)

	return NewRPCClient(server.URL, "user", "pass", common.NewTestEntry(t, "botcash")), calls
}

func TestCreatePost(t *testing.T) {
	client, calls := newTestNode(t, map[string]interface{}{
		"z_socialpost": map[string]string{"txid": "tx123"},
	})

	txID, err := client.CreatePost("bs1sender", "hello", []string{"tag"})
	if err != nil {
		t.Fatal(err)
	}
	if txID != "tx123" {
		t.Fatalf("txid should be tx123, not %s", txID)
	}

	if len(*calls) != 1 {
		t.Fatalf("expected 1 RPC call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.Method != "z_socialpost" {
		t.Fatalf("method should be z_socialpost, not %s", call.Method)
	}
	want := []interface{}{"bs1sender", "hello", []interface{}{"tag"}}
	if !reflect.DeepEqual(call.Params, want) {
		t.Fatalf("params should be %v, not %v", want, call.Params)
	}
}

func TestRPCErrorSurfaces(t *testing.T) {
	client, _ := newTestNode(t, map[string]interface{}{})

	_, err := client.CreatePost("bs1sender", "hello", nil)
	if err == nil {
		t.Fatal("RPC error should surface")
	}
	rpcErr, ok := err.(*RPCError)
	if !ok {
		t.Fatalf("error should be an RPCError, not %T", err)
	}
	if rpcErr.Code != -32601 {
		t.Fatalf("code should be -32601, not %d", rpcErr.Code)
	}
}

func TestValidateAddress(t *testing.T) {
	client, calls := newTestNode(t, map[string]interface{}{
		"z_validateaddress": map[string]bool{"isvalid": true},
		"validateaddress":   map[string]bool{"isvalid": false},
	})

	valid, err := client.ValidateAddress("bs1shielded")
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Fatal("shielded address should validate")
	}
	if (*calls)[0].Method != "z_validateaddress" {
		t.Fatalf("shielded address should use z_validateaddress, not %s", (*calls)[0].Method)
	}

	valid, err = client.ValidateAddress("t1transparent")
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Fatal("transparent address should not validate here")
	}
	if (*calls)[1].Method != "validateaddress" {
		t.Fatalf("transparent address should use validateaddress, not %s", (*calls)[1].Method)
	}
}

func TestValidateAddressRPCErrorIsInvalid(t *testing.T) {
	client, _ := newTestNode(t, map[string]interface{}{})

	valid, err := client.ValidateAddress("bs1whatever")
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Fatal("an RPC error should count as invalid")
	}
}

func TestTipParams(t *testing.T) {
	client, calls := newTestNode(t, map[string]interface{}{
		"z_socialtip": map[string]string{"txid": "tx9"},
	})

	if _, err := client.Tip("bs1a", "bs1b", 100, "txTarget"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Tip("bs1a", "bs1b", 100, ""); err != nil {
		t.Fatal(err)
	}

	if l := len((*calls)[0].Params); l != 4 {
		t.Fatalf("tip with target should pass 4 params, not %d", l)
	}
	if l := len((*calls)[1].Params); l != 3 {
		t.Fatalf("tip without target should pass 3 params, not %d", l)
	}
}

func TestCreateBridgeLink(t *testing.T) {
	client, calls := newTestNode(t, map[string]interface{}{
		"z_bridge_link": map[string]string{"txid": "txlink"},
	})

	txID, err := client.CreateBridgeLink("bs1addr", "pubkeyhex", "sighex", "selective")
	if err != nil {
		t.Fatal(err)
	}
	if txID != "txlink" {
		t.Fatalf("txid should be txlink, not %s", txID)
	}
	want := []interface{}{"bs1addr", "nostr", "pubkeyhex", "sighex", "selective"}
	if !reflect.DeepEqual((*calls)[0].Params, want) {
		t.Fatalf("params should be %v, not %v", want, (*calls)[0].Params)
	}
}

func TestGetFeed(t *testing.T) {
	client, calls := newTestNode(t, map[string]interface{}{
		"z_socialfeed": map[string]interface{}{
			"posts": []map[string]interface{}{
				{
					"txid":      "tx1",
					"address":   "bs1a",
					"content":   "first",
					"type":      "post",
					"timestamp": 100,
				},
			},
		},
	})

	posts, err := client.GetFeed([]string{"bs1a"}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	post := posts[0]
	if post.TxID != "tx1" || post.Address != "bs1a" || post.MessageType != "post" {
		t.Fatalf("post fields mismatch: %+v", post)
	}

	want := []interface{}{[]interface{}{"bs1a"}, float64(20), float64(0)}
	if !reflect.DeepEqual((*calls)[0].Params, want) {
		t.Fatalf("params should be %v, not %v", want, (*calls)[0].Params)
	}
}

func TestGetBalance(t *testing.T) {
	client, _ := newTestNode(t, map[string]interface{}{
		"z_getbalance": 1.5,
	})

	balance, err := client.GetBalance("bs1a")
	if err != nil {
		t.Fatal(err)
	}
	if balance.Confirmed != 150000000 {
		t.Fatalf("confirmed should be 150000000 zatoshis, not %d", balance.Confirmed)
	}
	if balance.ConfirmedBCASH() != 1.5 {
		t.Fatalf("confirmed BCASH should be 1.5, not %v", balance.ConfirmedBCASH())
	}
}

func TestGetPostByTxIDUnknown(t *testing.T) {
	client, _ := newTestNode(t, map[string]interface{}{})

	post, err := client.GetPostByTxID("txmissing")
	if err != nil {
		t.Fatal(err)
	}
	if post != nil {
		t.Fatalf("unknown tx should return nil post, got %+v", post)
	}
}
