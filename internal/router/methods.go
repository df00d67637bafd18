package router

// Destination picks which downstream client serves a method.
type Destination string

const (
	DestinationTx   Destination = "tx"
	DestinationRead Destination = "read"

	MethodSendRawTransaction = "eth_sendRawTransaction"
)

// methodRoutes is the only place methods are classified. Anything missing is
// rejected as unsupported.
var methodRoutes = map[string]Destination{
	MethodSendRawTransaction:    DestinationTx,
	"eth_getTransactionCount":   DestinationTx,
	"eth_getTransactionByHash":  DestinationTx,
	"eth_getTransactionReceipt": DestinationTx,
	"eth_estimateGas":           DestinationTx,

	"eth_blockNumber":      DestinationRead,
	"eth_chainId":          DestinationRead,
	"net_version":          DestinationRead,
	"eth_call":             DestinationRead,
	"eth_gasPrice":         DestinationRead,
	"eth_getBalance":       DestinationRead,
	"eth_getCode":          DestinationRead,
	"eth_getStorageAt":     DestinationRead,
	"eth_getLogs":          DestinationRead,
	"eth_getProof":         DestinationRead,
	"eth_getBlockByHash":   DestinationRead,
	"eth_getBlockByNumber": DestinationRead,
}

// Route reports the destination for method.
func Route(method string) (Destination, bool) {
	dest, ok := methodRoutes[method]
	return dest, ok
}
