package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"arcpay/apps/arcpay/internal/chains"
)

// InfoHandler describes the relayer and the chains it serves
type InfoHandler struct {
	response InfoResponse
	logger   *zap.Logger
}

// NewInfoHandler creates a new InfoHandler. The response is fixed at startup.
func NewInfoHandler(relayer common.Address, sourceChain chains.Key, configs []*chains.Config, logger *zap.Logger) *InfoHandler {
	response := InfoResponse{
		RelayerAddress: relayer.Hex(),
		SourceChain:    string(sourceChain),
		Chains:         make([]ChainInfo, 0, len(configs)),
	}
	for _, c := range configs {
		response.Chains = append(response.Chains, ChainInfo{
			Key:                string(c.Key),
			Name:               c.Name,
			ChainID:            c.ChainID,
			Domain:             c.Domain,
			Token:              c.Token.Hex(),
			TokenMessenger:     c.TokenMessenger.Hex(),
			MessageTransmitter: c.MessageTransmitter.Hex(),
			ExplorerURL:        c.ExplorerURL,
		})
	}
	return &InfoHandler{response: response, logger: logger}
}

// GetInfo handles GET /api/info
func (h *InfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, h.logger, http.StatusOK, h.response)
}
