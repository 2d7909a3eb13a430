package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/chopwell/chopwell-api/models"
)

// Event types
const (
	EventOrderStatus      = "order_status"
	EventDriverDispatch   = "driver_dispatch"
	EventPaymentUpdate    = "payment_update"
	EventDeliveryLocation = "delivery_location"
	EventStaffNotif       = "staff_notification"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub fans lifecycle events out to connected dashboard and driver clients.
// It implements services.Notifier.
type Hub struct {
	clients map[*websocket.Conn]string // conn -> role
	mutex   sync.Mutex
	log     *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]string),
		log:     log,
	}
}

// RegisterClient adds a connection with its role.
func (h *Hub) RegisterClient(conn *websocket.Conn, role string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = role
}

// UnregisterClient drops a connection.
func (h *Hub) UnregisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

// OrderStatusChanged broadcasts a status transition to every client.
func (h *Hub) OrderStatusChanged(order models.Order, status models.OrderStatus) {
	h.broadcast(Message{
		Event: EventOrderStatus,
		Data: map[string]interface{}{
			"order":  order,
			"status": status.Name,
		},
	}, "")
}

// NotifyEligibleDrivers tells driver clients an order is ready for pickup.
func (h *Hub) NotifyEligibleDrivers(order models.Order) {
	h.broadcast(Message{
		Event: EventDriverDispatch,
		Data: map[string]interface{}{
			"order_id":      order.ID,
			"restaurant_id": order.RestaurantID,
		},
	}, models.RoleDriver)
}

// PaymentUpdated broadcasts a settlement change.
func (h *Hub) PaymentUpdated(payment models.Payment) {
	h.broadcast(Message{
		Event: EventPaymentUpdate,
		Data:  payment,
	}, "")
}

// DeliveryLocation pushes a fresh tracking snapshot.
func (h *Hub) DeliveryLocation(tracking models.DeliveryTracking) {
	h.broadcast(Message{
		Event: EventDeliveryLocation,
		Data:  tracking,
	}, "")
}

// NotifyStaff sends a free-form staff notification.
func (h *Hub) NotifyStaff(format string, args ...interface{}) {
	h.broadcast(Message{
		Event: EventStaffNotif,
		Data:  fmt.Sprintf(format, args...),
	}, models.RoleStaff)
}

// broadcast sends msg to every client, or only to clients with the given
// role when role is non-empty.
func (h *Hub) broadcast(msg Message, role string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Errorf("marshaling %s event: %v", msg.Event, err)
		return
	}

	for conn, clientRole := range h.clients {
		if role != "" && clientRole != role {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Errorf("sending %s event: %v", msg.Event, err)
		}
	}
}
