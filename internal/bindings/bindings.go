// Package bindings holds the contract ABIs the relayer packs calls for and decodes
// events from.
package bindings

import (
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// L2CrossDomainMessengerMetaData contains the ABI of the L2 messenger predeploy.
var L2CrossDomainMessengerMetaData = &bind.MetaData{
	ABI: `[{"type":"function","name":"relayMessage","inputs":[{"name":"_target","type":"address","internalType":"address"},{"name":"_sender","type":"address","internalType":"address"},{"name":"_message","type":"bytes","internalType":"bytes"},{"name":"_messageNonce","type":"uint256","internalType":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},{"type":"function","name":"sendMessage","inputs":[{"name":"_target","type":"address","internalType":"address"},{"name":"_message","type":"bytes","internalType":"bytes"},{"name":"_gasLimit","type":"uint32","internalType":"uint32"}],"outputs":[],"stateMutability":"nonpayable"},{"type":"function","name":"relayedMessages","inputs":[{"name":"","type":"bytes32","internalType":"bytes32"}],"outputs":[{"name":"","type":"bool","internalType":"bool"}],"stateMutability":"view"},{"type":"function","name":"successfulMessages","inputs":[{"name":"","type":"bytes32","internalType":"bytes32"}],"outputs":[{"name":"","type":"bool","internalType":"bool"}],"stateMutability":"view"},{"type":"event","name":"SentMessage","inputs":[{"name":"message","type":"bytes","internalType":"bytes","indexed":false}],"anonymous":false},{"type":"event","name":"RelayedMessage","inputs":[{"name":"msgHash","type":"bytes32","internalType":"bytes32","indexed":false}],"anonymous":false},{"type":"event","name":"FailedRelayedMessage","inputs":[{"name":"msgHash","type":"bytes32","internalType":"bytes32","indexed":false}],"anonymous":false}]`,
}

// L1CrossDomainMessengerMetaData contains the ABI of the L1 messenger, whose relayMessage carries the L2 inclusion proof.
var L1CrossDomainMessengerMetaData = &bind.MetaData{
	ABI: `[{"type":"function","name":"relayMessage","inputs":[{"name":"_target","type":"address","internalType":"address"},{"name":"_sender","type":"address","internalType":"address"},{"name":"_message","type":"bytes","internalType":"bytes"},{"name":"_messageNonce","type":"uint256","internalType":"uint256"},{"name":"_proof","type":"tuple","internalType":"struct IL1CrossDomainMessenger.L2MessageInclusionProof","components":[{"name":"stateRoot","type":"bytes32","internalType":"bytes32"},{"name":"stateRootBatchHeader","type":"tuple","internalType":"struct Lib_OVMCodec.ChainBatchHeader","components":[{"name":"batchIndex","type":"uint256","internalType":"uint256"},{"name":"batchRoot","type":"bytes32","internalType":"bytes32"},{"name":"batchSize","type":"uint256","internalType":"uint256"},{"name":"prevTotalElements","type":"uint256","internalType":"uint256"},{"name":"extraData","type":"bytes","internalType":"bytes"}]},{"name":"stateRootProof","type":"tuple","internalType":"struct Lib_OVMCodec.ChainInclusionProof","components":[{"name":"index","type":"uint256","internalType":"uint256"},{"name":"siblings","type":"bytes32[]","internalType":"bytes32[]"}]},{"name":"stateTrieWitness","type":"bytes","internalType":"bytes"},{"name":"storageTrieWitness","type":"bytes","internalType":"bytes"}]}],"outputs":[],"stateMutability":"nonpayable"},{"type":"function","name":"sendMessage","inputs":[{"name":"_target","type":"address","internalType":"address"},{"name":"_message","type":"bytes","internalType":"bytes"},{"name":"_gasLimit","type":"uint32","internalType":"uint32"}],"outputs":[],"stateMutability":"nonpayable"},{"type":"function","name":"relayedMessages","inputs":[{"name":"","type":"bytes32","internalType":"bytes32"}],"outputs":[{"name":"","type":"bool","internalType":"bool"}],"stateMutability":"view"},{"type":"function","name":"successfulMessages","inputs":[{"name":"","type":"bytes32","internalType":"bytes32"}],"outputs":[{"name":"","type":"bool","internalType":"bool"}],"stateMutability":"view"},{"type":"event","name":"SentMessage","inputs":[{"name":"message","type":"bytes","internalType":"bytes","indexed":false}],"anonymous":false},{"type":"event","name":"RelayedMessage","inputs":[{"name":"msgHash","type":"bytes32","internalType":"bytes32","indexed":false}],"anonymous":false},{"type":"event","name":"FailedRelayedMessage","inputs":[{"name":"msgHash","type":"bytes32","internalType":"bytes32","indexed":false}],"anonymous":false}]`,
}

// StateCommitmentChainMetaData contains the ABI of the L1 contract L2 state roots are appended to.
var StateCommitmentChainMetaData = &bind.MetaData{
	ABI: `[{"type":"function","name":"appendStateBatch","inputs":[{"name":"_batch","type":"bytes32[]","internalType":"bytes32[]"},{"name":"_shouldStartAtElement","type":"uint256","internalType":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},{"type":"function","name":"getTotalElements","inputs":[],"outputs":[{"name":"_totalElements","type":"uint256","internalType":"uint256"}],"stateMutability":"view"},{"type":"function","name":"insideFraudProofWindow","inputs":[{"name":"_batchHeader","type":"tuple","internalType":"struct Lib_OVMCodec.ChainBatchHeader","components":[{"name":"batchIndex","type":"uint256","internalType":"uint256"},{"name":"batchRoot","type":"bytes32","internalType":"bytes32"},{"name":"batchSize","type":"uint256","internalType":"uint256"},{"name":"prevTotalElements","type":"uint256","internalType":"uint256"},{"name":"extraData","type":"bytes","internalType":"bytes"}]}],"outputs":[{"name":"_inside","type":"bool","internalType":"bool"}],"stateMutability":"view"},{"type":"event","name":"StateBatchAppended","inputs":[{"name":"_batchIndex","type":"uint256","internalType":"uint256","indexed":true},{"name":"_batchRoot","type":"bytes32","internalType":"bytes32","indexed":false},{"name":"_batchSize","type":"uint256","internalType":"uint256","indexed":false},{"name":"_prevTotalElements","type":"uint256","internalType":"uint256","indexed":false},{"name":"_extraData","type":"bytes","internalType":"bytes","indexed":false}],"anonymous":false}]`,
}
