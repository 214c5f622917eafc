package botcash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ZatoshisPerBCASH is the number of base units in one BCASH.
const ZatoshisPerBCASH = 100000000

// Platform is the platform name recorded in bridge-link transactions.
const Platform = "nostr"

// Client is the Botcash node collaborator. Every social operation returns the
// transaction id it produced, or an error.
type Client interface {
	// GetBlockchainInfo verifies connectivity and returns chain facts.
	GetBlockchainInfo() (*ChainInfo, error)
	// ValidateAddress reports whether address is a valid Botcash address.
	ValidateAddress(address string) (bool, error)
	// GetBalance returns the balance of a Botcash address.
	GetBalance(address string) (*Balance, error)
	// CreatePost publishes a social post.
	CreatePost(fromAddress string, content string, tags []string) (string, error)
	// CreateReply publishes a reply to an existing post.
	CreateReply(fromAddress string, content string, replyToTx string) (string, error)
	// SendDM sends an encrypted direct message.
	SendDM(fromAddress string, toAddress string, content string) (string, error)
	// Follow records a follow relationship.
	Follow(fromAddress string, targetAddress string) (string, error)
	// Unfollow removes a follow relationship.
	Unfollow(fromAddress string, targetAddress string) (string, error)
	// Upvote reacts to an existing post.
	Upvote(fromAddress string, targetTx string) (string, error)
	// Tip transfers value, optionally attached to a post.
	Tip(fromAddress string, toAddress string, amountZatoshis int64, targetTx string) (string, error)
	// CreateBridgeLink records an identity link on-chain.
	CreateBridgeLink(address string, platformID string, proof string, privacyMode string) (string, error)
	// GetFeed returns social posts for the given addresses.
	GetFeed(addresses []string, limit int, offset int) ([]*Post, error)
	// GetPostByTxID returns one post, or nil if the tx is unknown.
	GetPostByTxID(txID string) (*Post, error)
}

// ChainInfo is the subset of getblockchaininfo the bridge cares about.
type ChainInfo struct {
	Chain         string `json:"chain"`
	Blocks        int64  `json:"blocks"`
	BestBlockHash string `json:"bestblockhash"`
}

// Balance of a Botcash address, in zatoshis.
type Balance struct {
	Address   string
	Confirmed int64
	Pending   int64
}

// ConfirmedBCASH returns the confirmed balance in BCASH.
func (b *Balance) ConfirmedBCASH() float64 {
	return float64(b.Confirmed) / ZatoshisPerBCASH
}

// TotalBCASH returns the confirmed plus pending balance in BCASH.
func (b *Balance) TotalBCASH() float64 {
	return float64(b.Confirmed+b.Pending) / ZatoshisPerBCASH
}

// Post is one record of the social feed.
type Post struct {
	TxID        string   `json:"txid"`
	Address     string   `json:"address"`
	Content     string   `json:"content"`
	MessageType string   `json:"type"`
	Tags        []string `json:"tags"`
	ReplyToTx   string   `json:"reply_to"`
	Timestamp   int64    `json:"timestamp"`
}

// RPCError is an error object returned by the Botcash node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC Error %d: %s", e.Code, e.Message)
}

// RPCClient talks JSON-RPC 2.0 to a Botcash node over HTTP.
type RPCClient struct {
	url       string
	user      string
	password  string
	requestID uint64
	http      *http.Client
	logger    *logrus.Entry
}

// NewRPCClient creates a client for the node at url. user and password may be
// empty when the node does not require auth.
func NewRPCClient(url string, user string, password string, logger *logrus.Entry) *RPCClient {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &RPCClient{
		url:      url,
		user:     user,
		password: password,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *RPCClient) call(method string, params []interface{}, result interface{}) error {
	if params == nil {
		params = []interface{}{}
	}

	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.requestID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", c.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" && c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return err
	}
	if decoded.Error != nil {
		return decoded.Error
	}
	if result != nil && len(decoded.Result) > 0 {
		return json.Unmarshal(decoded.Result, result)
	}
	return nil
}

// callTx runs a social RPC whose result carries a txid.
func (c *RPCClient) callTx(method string, params []interface{}) (string, error) {
	var result struct {
		TxID string `json:"txid"`
	}
	if err := c.call(method, params, &result); err != nil {
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"error":  err,
		}).Error("Botcash RPC failed")
		return "", err
	}
	return result.TxID, nil
}

func shielded(address string) bool {
	return strings.HasPrefix(address, "bs") || strings.HasPrefix(address, "bu")
}

// GetBlockchainInfo implements the Client interface.
func (c *RPCClient) GetBlockchainInfo() (*ChainInfo, error) {
	info := new(ChainInfo)
	if err := c.call("getblockchaininfo", nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

// ValidateAddress implements the Client interface. An RPC error counts as
// invalid.
func (c *RPCClient) ValidateAddress(address string) (bool, error) {
	method := "validateaddress"
	if shielded(address) {
		method = "z_validateaddress"
	}

	var result struct {
		IsValid bool `json:"isvalid"`
	}
	if err := c.call(method, []interface{}{address}, &result); err != nil {
		if _, ok := err.(*RPCError); ok {
			return false, nil
		}
		return false, err
	}
	return result.IsValid, nil
}

// GetBalance implements the Client interface.
func (c *RPCClient) GetBalance(address string) (*Balance, error) {
	method := "getreceivedbyaddress"
	if shielded(address) {
		method = "z_getbalance"
	}

	var bcash float64
	if err := c.call(method, []interface{}{address}, &bcash); err != nil {
		return nil, err
	}
	return &Balance{
		Address:   address,
		Confirmed: int64(bcash * ZatoshisPerBCASH),
	}, nil
}

// CreatePost implements the Client interface.
func (c *RPCClient) CreatePost(fromAddress string, content string, tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	return c.callTx("z_socialpost", []interface{}{fromAddress, content, tags})
}

// CreateReply implements the Client interface.
func (c *RPCClient) CreateReply(fromAddress string, content string, replyToTx string) (string, error) {
	return c.callTx("z_socialreply", []interface{}{fromAddress, content, replyToTx})
}

// SendDM implements the Client interface.
func (c *RPCClient) SendDM(fromAddress string, toAddress string, content string) (string, error) {
	return c.callTx("z_socialdm", []interface{}{fromAddress, toAddress, content})
}

// Follow implements the Client interface.
func (c *RPCClient) Follow(fromAddress string, targetAddress string) (string, error) {
	return c.callTx("z_socialfollow", []interface{}{fromAddress, targetAddress})
}

// Unfollow implements the Client interface.
func (c *RPCClient) Unfollow(fromAddress string, targetAddress string) (string, error) {
	return c.callTx("z_socialunfollow", []interface{}{fromAddress, targetAddress})
}

// Upvote implements the Client interface.
func (c *RPCClient) Upvote(fromAddress string, targetTx string) (string, error) {
	return c.callTx("z_socialupvote", []interface{}{fromAddress, targetTx})
}

// Tip implements the Client interface.
func (c *RPCClient) Tip(fromAddress string, toAddress string, amountZatoshis int64, targetTx string) (string, error) {
	params := []interface{}{fromAddress, toAddress, amountZatoshis}
	if targetTx != "" {
		params = append(params, targetTx)
	}
	return c.callTx("z_socialtip", params)
}

// CreateBridgeLink implements the Client interface.
func (c *RPCClient) CreateBridgeLink(address string, platformID string, proof string, privacyMode string) (string, error) {
	return c.callTx("z_bridge_link", []interface{}{address, Platform, platformID, proof, privacyMode})
}

// GetFeed implements the Client interface.
func (c *RPCClient) GetFeed(addresses []string, limit int, offset int) ([]*Post, error) {
	var result struct {
		Posts []*Post `json:"posts"`
	}
	if err := c.call("z_socialfeed", []interface{}{addresses, limit, offset}, &result); err != nil {
		return nil, err
	}
	return result.Posts, nil
}

// GetPostByTxID implements the Client interface. An RPC error means the post
// is unknown.
func (c *RPCClient) GetPostByTxID(txID string) (*Post, error) {
	post := new(Post)
	if err := c.call("z_socialpost_get", []interface{}{txID}, post); err != nil {
		if _, ok := err.(*RPCError); ok {
			return nil, nil
		}
		return nil, err
	}
	return post, nil
}
