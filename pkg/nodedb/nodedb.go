// Package nodedb keeps the in-memory directory of mesh nodes heard by the
// radio, keyed by node number, and tells observers when it changes.
package nodedb

import (
	"slices"
	"sync"

	"github.com/Archie3d/meshtastic-link/pkg/types"
	"github.com/charmbracelet/log"
)

type NodeNum = types.NodeId

// Display identity of a node.
type User struct {
	Id        string           `json:"id"`
	LongName  string           `json:"long_name"`
	ShortName string           `json:"short_name"`
	MacAddr   types.MacAddress `json:"mac_address"`
	HwModel   uint32           `json:"hw_model"`
}

// Last reported position. A nil field has not been reported yet, which is
// not the same as a reported zero.
type Position struct {
	LatitudeI    *int32  `json:"latitude_i,omitempty"`
	LongitudeI   *int32  `json:"longitude_i,omitempty"`
	Altitude     *int32  `json:"altitude,omitempty"`
	Time         *uint32 `json:"time,omitempty"`
	BatteryLevel *uint32 `json:"battery_level,omitempty"`
}

func (p Position) Latitude() (float64, bool) {
	if p.LatitudeI == nil {
		return 0, false
	}
	return float64(*p.LatitudeI) * 1e-7, true
}

func (p Position) Longitude() (float64, bool) {
	if p.LongitudeI == nil {
		return 0, false
	}
	return float64(*p.LongitudeI) * 1e-7, true
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func (p Position) clone() Position {
	return Position{
		LatitudeI:    clonePtr(p.LatitudeI),
		LongitudeI:   clonePtr(p.LongitudeI),
		Altitude:     clonePtr(p.Altitude),
		Time:         clonePtr(p.Time),
		BatteryLevel: clonePtr(p.BatteryLevel),
	}
}

type NodeInfo struct {
	Num      NodeNum  `json:"num"`
	User     User     `json:"user"`
	Position Position `json:"position"`
}

// Entries never share position fields with callers.
func (n NodeInfo) clone() NodeInfo {
	n.Position = n.Position.clone()
	return n
}

// Partial record applied by Upsert. Nil fields are left unchanged.
type Patch struct {
	User     *User
	Position *Position
}

// NodeDB maps node numbers to what is known about each node.
//
// It is fed by a single writer, the protocol layer. Observers are called
// synchronously after each mutation, outside of the lock.
type NodeDB struct {
	mutex sync.RWMutex
	nodes map[NodeNum]*NodeInfo

	observers observerList
}

func New() *NodeDB {
	return &NodeDB{
		nodes: make(map[NodeNum]*NodeInfo),
	}
}

// Insert or replace the whole entry for info.Num.
func (db *NodeDB) AddNode(info NodeInfo) NodeNum {
	node := info.clone()

	db.mutex.Lock()
	db.nodes[info.Num] = &node
	db.mutex.Unlock()

	db.dispatch(&info.Num)

	return info.Num
}

// Replace the user of a node, creating the node with an unknown position
// if it is not in the directory yet.
func (db *NodeDB) AddUserData(num NodeNum, user User) NodeNum {
	return db.Upsert(num, Patch{User: &user})
}

// Replace the position of a node, creating the node with an empty user
// if it is not in the directory yet.
func (db *NodeDB) AddPositionData(num NodeNum, position Position) NodeNum {
	return db.Upsert(num, Patch{Position: &position})
}

// Create the node if absent, then apply the non-nil fields of patch.
func (db *NodeDB) Upsert(num NodeNum, patch Patch) NodeNum {
	db.mutex.Lock()
	node, ok := db.nodes[num]
	if !ok {
		node = &NodeInfo{Num: num}
		db.nodes[num] = node
	}

	if patch.User != nil {
		node.User = *patch.User
	}

	if patch.Position != nil {
		node.Position = patch.Position.clone()
	}
	db.mutex.Unlock()

	db.dispatch(&num)

	return num
}

// Remove a node. Removing an unknown node is not an error, the change
// event is sent either way.
func (db *NodeDB) RemoveNode(num NodeNum) NodeNum {
	db.mutex.Lock()
	delete(db.nodes, num)
	db.mutex.Unlock()

	db.dispatch(&num)

	return num
}

// Drop every node, e.g. when the radio is about to resend its node database.
func (db *NodeDB) Reset() {
	db.mutex.Lock()
	db.nodes = make(map[NodeNum]*NodeInfo)
	db.mutex.Unlock()

	db.dispatch(nil)
}

func (db *NodeDB) GetNodeByNum(num NodeNum) (NodeInfo, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	node, ok := db.nodes[num]
	if !ok {
		return NodeInfo{}, false
	}

	return node.clone(), true
}

// Snapshot of the directory keyed by node number.
func (db *NodeDB) GetNodeList() map[NodeNum]NodeInfo {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	list := make(map[NodeNum]NodeInfo, len(db.nodes))
	for num, node := range db.nodes {
		list[num] = node.clone()
	}

	return list
}

// Snapshot of the directory ordered by node number.
func (db *NodeDB) Nodes() []NodeInfo {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	nodes := make([]NodeInfo, 0, len(db.nodes))
	for _, num := range db.sortedNums() {
		nodes = append(nodes, db.nodes[num].clone())
	}

	return nodes
}

func (db *NodeDB) Len() int {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return len(db.nodes)
}

func (db *NodeDB) NodeNumToUserId(num NodeNum) (string, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	node, ok := db.nodes[num]
	if !ok || node.User.Id == "" {
		return "", false
	}

	return node.User.Id, true
}

// Find the node owning userId. Nodes are scanned in ascending number order
// and the first match wins.
func (db *NodeDB) UserIdToNodeNum(userId string) (NodeNum, bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	var found NodeNum
	matches := 0

	for _, num := range db.sortedNums() {
		if db.nodes[num].User.Id != userId {
			continue
		}

		if matches == 0 {
			found = num
		}
		matches++
	}

	if matches > 1 {
		log.With("user_id", userId, "matches", matches, "num", found).Warn("User id shared by several nodes")
	}

	return found, matches > 0
}

func (db *NodeDB) sortedNums() []NodeNum {
	nums := make([]NodeNum, 0, len(db.nodes))
	for num := range db.nodes {
		nums = append(nums, num)
	}
	slices.Sort(nums)
	return nums
}
