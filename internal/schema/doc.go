// Package schema defines the six repair-shop entities and the snapshot
// record exchanged with the remote backup store.
//
// The JSON field names are the wire format: they match the record layout
// the hosted backend already stores (clientes, equipos, ordenes, eventos,
// piezas, adjuntos, with Spanish field names inside each entity). Renaming
// a tag breaks compatibility with every snapshot already uploaded.
//
// Entity graph:
//
//	Client 1──N Equipment 1──1 Order 1──N {Event, Part, Attachment}
//
// An Order and its Equipment share a creation lifecycle: registering a
// repair creates both in one transaction, and deleting the order removes
// the equipment with it.
package schema
