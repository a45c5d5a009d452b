package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fairledger/sidechain/core/types"
)

// ErrMongoConnect mirrors the teacher's fairdb.MongDBConnectError sentinel.
var ErrMongoConnect = errors.New("ledger: failed to connect to mongo database")

// Mongo is a go.mongodb.org/mongo-driver backed Store, grounded on
// fairnode/fairdb/mongo_database.go's one-collection-per-concern layout:
// chain, contracts and one collection per "<contract>_<table>" document
// table, the same shape the teacher uses for chainConfig/activeNodeCol/
// leagues/etc.
type Mongo struct {
	mu sync.Mutex

	url    string
	dbName string

	ctx    context.Context
	client *mongo.Client

	chain     *mongo.Collection
	contracts *mongo.Collection

	tablesMu sync.Mutex
	tables   map[string]*mongo.Collection
}

// NewMongo builds a Mongo store for the database named
// "sidechain_<chainID>" at url, following NewMongoDatabase's naming
// convention in the teacher.
func NewMongo(url, chainID string) (*Mongo, error) {
	client, err := mongo.NewClient(options.Client().ApplyURI(url))
	if err != nil {
		return nil, errors.Wrap(err, "new mongo client")
	}
	return &Mongo{
		url:    url,
		dbName: fmt.Sprintf("sidechain_%s", chainID),
		ctx:    context.Background(),
		client: client,
		tables: make(map[string]*mongo.Collection),
	}, nil
}

func (m *Mongo) Start() error {
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()
	if err := m.client.Connect(ctx); err != nil {
		return errors.Wrap(ErrMongoConnect, err.Error())
	}
	db := m.client.Database(m.dbName)
	m.chain = db.Collection("Chain")
	m.contracts = db.Collection("Contracts")
	return nil
}

func (m *Mongo) Stop() error {
	return m.client.Disconnect(m.ctx)
}

func (m *Mongo) Reset() error {
	return m.client.Database(m.dbName).Drop(m.ctx)
}

func (m *Mongo) SaveBlock(b *types.Block) error {
	_, err := m.chain.InsertOne(m.ctx, b)
	return err
}

func (m *Mongo) GetBlock(blockNumber uint64) (*types.Block, bool, error) {
	var b types.Block
	err := m.chain.FindOne(m.ctx, bson.M{"blockNumber": blockNumber}).Decode(&b)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

func (m *Mongo) LatestBlock() (*types.Block, bool, error) {
	opts := options.FindOne().SetSort(bson.M{"blockNumber": -1})
	var b types.Block
	err := m.chain.FindOne(m.ctx, bson.M{}, opts).Decode(&b)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

func (m *Mongo) ChainLength() (uint64, error) {
	n, err := m.chain.CountDocuments(m.ctx, bson.M{})
	return uint64(n), err
}

func (m *Mongo) SaveContract(c *types.Contract) error {
	_, err := m.contracts.InsertOne(m.ctx, c)
	return err
}

func (m *Mongo) GetContract(name string) (*types.Contract, bool, error) {
	var c types.Contract
	err := m.contracts.FindOne(m.ctx, bson.M{"name": name}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	c.AfterLoad()
	return &c, true, nil
}

func (m *Mongo) ContractExists(name string) (bool, error) {
	n, err := m.contracts.CountDocuments(m.ctx, bson.M{"name": name})
	return n > 0, err
}

// collection returns the collection for "<contract>_<table>", creating it
// (idempotently, like db.createTable in spec.md §4.2) on first use.
func (m *Mongo) collection(contract, table string) *mongo.Collection {
	fq := types.QualifiedTableName(contract, table)
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()
	if col, ok := m.tables[fq]; ok {
		return col
	}
	col := m.client.Database(m.dbName).Collection(fq)
	m.tables[fq] = col
	return col
}

func (m *Mongo) CreateTable(contract, table string) error {
	m.collection(contract, table)
	return nil
}

func (m *Mongo) TableExists(contract, table string) (bool, error) {
	fq := types.QualifiedTableName(contract, table)
	m.tablesMu.Lock()
	_, ok := m.tables[fq]
	m.tablesMu.Unlock()
	return ok, nil
}

func (m *Mongo) Insert(contract, table string, doc Document) error {
	_, err := m.collection(contract, table).InsertOne(m.ctx, bson.M(doc))
	return err
}

func (m *Mongo) FindInTable(contract, table string, query Document) ([]Document, error) {
	cur, err := m.collection(contract, table).Find(m.ctx, bson.M(query))
	if err != nil {
		return nil, err
	}
	defer cur.Close(m.ctx)

	var out []Document
	for cur.Next(m.ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, Document(raw))
	}
	return out, cur.Err()
}

func (m *Mongo) FindOneInTable(contract, table string, query Document) (Document, bool, error) {
	var raw bson.M
	err := m.collection(contract, table).FindOne(m.ctx, bson.M(query)).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return Document(raw), true, nil
}
